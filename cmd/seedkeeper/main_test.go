package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`log_level = "error"

[paths]
log_dir = %q
download_dir = %q

[tracker]
base_url = "https://tracker.test"
username = "tester"
password = "secret"

[transfer]
base_url = "http://127.0.0.1:8080"
`, filepath.Join(dir, "logs"), filepath.Join(dir, "downloads"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v\noutput: %s", args, err, buf.String())
	}
	return buf.String()
}

func TestQueueListEmpty(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out := runCommand(t, "-c", cfgPath, "queue", "list")
	if !strings.Contains(out, "No acquisitions found") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestWishlistAddAndList(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := runCommand(t, "-c", cfgPath, "wishlist", "add", "The Wanted Book", "--author", "A. Writer")
	if !strings.Contains(out, "Added wishlist entry") {
		t.Fatalf("unexpected add output: %s", out)
	}

	out = runCommand(t, "-c", cfgPath, "wishlist", "list")
	if !strings.Contains(out, "The Wanted Book") || !strings.Contains(out, "A. Writer") {
		t.Fatalf("unexpected list output: %s", out)
	}
}

func TestWishlistAddCanonicalizesNames(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := runCommand(t, "-c", cfgPath, "wishlist", "add", "  project   hail mary ", "--author", "andy weir")
	if !strings.Contains(out, "Project Hail Mary") {
		t.Fatalf("expected canonical title in output: %s", out)
	}

	out = runCommand(t, "-c", cfgPath, "wishlist", "list")
	if !strings.Contains(out, "Project Hail Mary") || !strings.Contains(out, "Andy Weir") {
		t.Fatalf("expected canonical names stored: %s", out)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out := runCommand(t, "-c", cfgPath, "config", "show")
	if strings.Contains(out, "secret") {
		t.Fatalf("password leaked in output: %s", out)
	}
	if !strings.Contains(out, "********") {
		t.Fatalf("expected redaction marker: %s", out)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")

	out := runCommand(t, "config", "init", "--path", target)
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %s", out)
	}

	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"config", "init", "--path", target})
	if err := root.Execute(); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
}

func TestStatusRendersSections(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out := runCommand(t, "-c", cfgPath, "status")
	for _, want := range []string{"== Queue ==", "== Ratio emergency ==", "== VIP =="} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing section %q in output: %s", want, out)
		}
	}
}
