// Package integrity validates a completed acquisition before it is trusted:
// file count, total size, per-file decodability, and total duration against
// the expected manifest.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"seedkeeper/internal/download"
	"seedkeeper/internal/logging"
)

const (
	// durationTolerance is the allowed relative delta between observed and
	// expected total duration.
	durationTolerance = 0.01
	// sizeTolerance is the allowed relative delta for total payload size.
	sizeTolerance = 0.01
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".m4b":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".aac":  {},
	".wav":  {},
}

// Check is one named validation with its outcome.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Result is the full verification outcome.
type Result struct {
	Passed bool
	Checks []Check
	Errors []string
}

// FileProbe is the decoded information for one audio file.
type FileProbe struct {
	DurationSeconds float64
}

// ProbeFunc inspects a single audio file; a returned error means the file
// does not decode cleanly.
type ProbeFunc func(ctx context.Context, path string) (FileProbe, error)

// Verifier runs the integrity checks for completed acquisitions.
type Verifier struct {
	binary string
	probe  ProbeFunc
	logger *slog.Logger
}

// Option customizes the verifier.
type Option func(*Verifier)

// WithProbe replaces the ffprobe-backed file probe (for tests).
func WithProbe(probe ProbeFunc) Option {
	return func(v *Verifier) {
		if probe != nil {
			v.probe = probe
		}
	}
}

// WithBinary overrides the ffprobe binary path.
func WithBinary(binary string) Option {
	return func(v *Verifier) {
		if strings.TrimSpace(binary) != "" {
			v.binary = binary
		}
	}
}

// New constructs a verifier.
func New(logger *slog.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	verifier := &Verifier{
		binary: "ffprobe",
		logger: logging.WithComponent(logger, "integrity"),
	}
	verifier.probe = verifier.ffprobeFile
	for _, opt := range opts {
		opt(verifier)
	}
	return verifier
}

// Verify runs every check against the acquisition's download directory. A
// failed check marks the result failed but later checks still run so the
// audit record carries the full picture.
func (v *Verifier) Verify(ctx context.Context, item *download.Acquisition) (Result, error) {
	if item == nil {
		return Result{}, fmt.Errorf("verify: nil acquisition")
	}
	files, totalBytes, err := collectAudioFiles(item.DownloadDir)
	if err != nil {
		return Result{}, fmt.Errorf("scan download dir: %w", err)
	}

	var result Result
	result.Passed = true
	fail := func(check Check, message string) {
		check.Passed = false
		result.Checks = append(result.Checks, check)
		result.Errors = append(result.Errors, message)
		result.Passed = false
	}
	pass := func(check Check) {
		check.Passed = true
		result.Checks = append(result.Checks, check)
	}

	countCheck := Check{Name: "file_count", Detail: fmt.Sprintf("observed %d expected %d", len(files), item.ExpectedFiles)}
	switch {
	case item.ExpectedFiles <= 0:
		countCheck.Detail = fmt.Sprintf("no expectation, observed %d", len(files))
		pass(countCheck)
	case len(files) == item.ExpectedFiles:
		pass(countCheck)
	default:
		fail(countCheck, countCheck.Detail)
	}

	sizeCheck := Check{Name: "total_size", Detail: fmt.Sprintf("observed %d expected %d bytes", totalBytes, item.ExpectedBytes)}
	switch {
	case item.ExpectedBytes <= 0:
		sizeCheck.Detail = fmt.Sprintf("no expectation, observed %d bytes", totalBytes)
		pass(sizeCheck)
	case withinTolerance(float64(totalBytes), float64(item.ExpectedBytes), sizeTolerance):
		pass(sizeCheck)
	default:
		fail(sizeCheck, sizeCheck.Detail)
	}

	var totalDuration float64
	decodeCheck := Check{Name: "decode", Detail: fmt.Sprintf("%d files probed", len(files))}
	decodeOK := true
	for _, path := range files {
		probe, err := v.probe(ctx, path)
		if err != nil {
			decodeOK = false
			fail(Check{Name: "decode", Detail: filepath.Base(path)}, fmt.Sprintf("decode %s: %v", filepath.Base(path), err))
			continue
		}
		totalDuration += probe.DurationSeconds
	}
	if decodeOK {
		pass(decodeCheck)
	}

	durationCheck := Check{Name: "duration", Detail: fmt.Sprintf("observed %.1fs expected %.1fs", totalDuration, item.ExpectedSeconds)}
	switch {
	case item.ExpectedSeconds <= 0:
		durationCheck.Detail = fmt.Sprintf("no expectation, observed %.1fs", totalDuration)
		pass(durationCheck)
	case withinTolerance(totalDuration, item.ExpectedSeconds, durationTolerance):
		pass(durationCheck)
	default:
		fail(durationCheck, durationCheck.Detail)
	}

	v.logger.Info("verification finished",
		logging.Int64(logging.FieldAcquisitionID, item.ID),
		logging.Bool("passed", result.Passed),
		logging.Int("files", len(files)),
		logging.Float64("duration_seconds", totalDuration))
	return result, nil
}

func withinTolerance(observed, expected, tolerance float64) bool {
	if expected == 0 {
		return observed == 0
	}
	return math.Abs(observed-expected)/expected <= tolerance
}

func collectAudioFiles(dir string) ([]string, int64, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, 0, fmt.Errorf("download directory not set")
	}
	var (
		files []string
		total int64
	)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		files = append(files, path)
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// ffprobeFile shells out to ffprobe and parses the container duration.
func (v *Verifier) ffprobeFile(ctx context.Context, path string) (FileProbe, error) {
	cmd := exec.CommandContext(ctx, v.binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return FileProbe{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}
	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return FileProbe{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return FileProbe{}, fmt.Errorf("ffprobe duration: %w", err)
	}
	return FileProbe{DurationSeconds: duration}, nil
}
