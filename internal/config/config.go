package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir      string `toml:"log_dir"`
	DownloadDir string `toml:"download_dir"`
}

// Tracker contains connection settings for the private tracker.
type Tracker struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Transfer contains connection settings for the external transfer client.
type Transfer struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Ratio contains the hysteresis thresholds and polling cadence for the
// ratio safety controller.
type Ratio struct {
	Floor             float64 `toml:"floor"`
	Recovery          float64 `toml:"recovery"`
	CheckInterval     int     `toml:"check_interval"`
	SnapshotRetention int     `toml:"snapshot_retention_days"`
}

// Quality contains scoring inputs for the release rules engine.
type Quality struct {
	BitrateCeilingKbps int     `toml:"bitrate_ceiling_kbps"`
	GlobalFloor        float64 `toml:"global_floor"`
}

// VIP contains settings for the daily premium-renewal planner.
type VIP struct {
	Enabled     bool `toml:"enabled"`
	RenewalCost int  `toml:"renewal_cost"`
	RunHour     int  `toml:"run_hour"`
}

// Workflow contains daemon loop cadences and timeouts.
type Workflow struct {
	LifecyclePollInterval int `toml:"lifecycle_poll_interval"`
	ErrorRetryInterval    int `toml:"error_retry_interval"`
	SeedSlotTotal         int `toml:"seed_slot_total"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for seedkeeper.
//
// Configuration sections by subsystem:
//   - Paths: log and download directories
//   - Tracker: private tracker credentials and endpoint
//   - Transfer: transfer client WebAPI endpoint
//   - Ratio: emergency floor/recovery hysteresis and poll cadence
//   - Quality: release scoring inputs
//   - VIP: daily renewal planner
//   - Workflow: loop intervals and seed slot budget
//   - Notifications: ntfy push settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tracker       Tracker       `toml:"tracker"`
	Transfer      Transfer      `toml:"transfer"`
	Ratio         Ratio         `toml:"ratio"`
	Quality       Quality       `toml:"quality"`
	VIP           VIP           `toml:"vip"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/seedkeeper/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DownloadDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogDir returns the normalized log directory.
func (c *Config) LogDir() string {
	return c.Paths.LogDir
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	return filepath.Abs(trimmed)
}
