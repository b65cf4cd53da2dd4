package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. Failures here are fatal at
// startup: the daemon refuses to run with a broken safety configuration
// rather than running degraded.
func (c *Config) Validate() error {
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateRatio(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateVIP(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validateTracker() error {
	if c.Tracker.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/seedkeeper/config.toml"
		}
		return fmt.Errorf("tracker.base_url is required. Edit %s (create with 'seedkeeper config init')", defaultPath)
	}
	if c.Tracker.Username == "" {
		return errors.New("tracker.username is required")
	}
	if c.Tracker.Password == "" {
		return errors.New("tracker.password is required. Set it or export SEEDKEEPER_TRACKER_PASSWORD")
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.BaseURL == "" {
		return errors.New("transfer.base_url is required")
	}
	return nil
}

func (c *Config) validateRatio() error {
	if c.Ratio.Floor <= 0 {
		return errors.New("ratio.floor must be positive")
	}
	// Strict ordering prevents controller oscillation at the boundary.
	if c.Ratio.Recovery <= c.Ratio.Floor {
		return fmt.Errorf("ratio.recovery (%.2f) must be strictly greater than ratio.floor (%.2f)", c.Ratio.Recovery, c.Ratio.Floor)
	}
	if c.Ratio.CheckInterval <= 0 {
		return errors.New("ratio.check_interval must be positive")
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.BitrateCeilingKbps <= 0 {
		return errors.New("quality.bitrate_ceiling_kbps must be positive")
	}
	if c.Quality.GlobalFloor < 0 || c.Quality.GlobalFloor > 100 {
		return errors.New("quality.global_floor must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateVIP() error {
	if !c.VIP.Enabled {
		return nil
	}
	if c.VIP.RenewalCost <= 0 {
		return errors.New("vip.renewal_cost must be positive when vip.enabled is true")
	}
	if c.VIP.RunHour < 0 || c.VIP.RunHour > 23 {
		return errors.New("vip.run_hour must be between 0 and 23")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.lifecycle_poll_interval": c.Workflow.LifecyclePollInterval,
		"workflow.error_retry_interval":    c.Workflow.ErrorRetryInterval,
		"workflow.seed_slot_total":         c.Workflow.SeedSlotTotal,
		"tracker.request_timeout":          c.Tracker.RequestTimeout,
		"transfer.request_timeout":         c.Transfer.RequestTimeout,
		"notifications.request_timeout":    c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
