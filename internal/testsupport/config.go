package testsupport

import (
	"path/filepath"
	"testing"

	"seedkeeper/internal/config"
)

// NewConfig returns a validated config rooted in a per-test temp directory.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.DownloadDir = filepath.Join(dir, "downloads")
	cfg.Tracker.BaseURL = "https://tracker.test"
	cfg.Tracker.Username = "tester"
	cfg.Tracker.Password = "secret"
	cfg.Transfer.BaseURL = "http://127.0.0.1:8080"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
