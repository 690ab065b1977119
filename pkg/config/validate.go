package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gopsu/pkg/psu"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial: port must be set")
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial: baud_rate must be positive, got %d", cfg.Serial.BaudRate)
	}
	if cfg.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial: read_timeout must not be negative, got %s", cfg.Serial.ReadTimeout)
	}
	if cfg.Serial.BootSettle < 0 {
		return fmt.Errorf("serial: boot_settle must not be negative, got %s", cfg.Serial.BootSettle)
	}
	if cfg.Serial.CommandSettle < 0 {
		return fmt.Errorf("serial: command_settle must not be negative, got %s", cfg.Serial.CommandSettle)
	}

	if err := cfg.Calibration().Validate(); err != nil {
		return fmt.Errorf("dac: %w", err)
	}
	if r := cfg.DAC.Resolution; r&(r-1) != 0 {
		return fmt.Errorf("dac: resolution must be a power of two, got %d", r)
	}

	if len(cfg.Channels) == 0 {
		return fmt.Errorf("channels: at least one channel must be configured")
	}
	seen := make(map[int]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch < 0 {
			return fmt.Errorf("channels: channel numbers must not be negative, got %d", ch)
		}
		if seen[ch] {
			return fmt.Errorf("channels: channel %d is configured twice", ch)
		}
		seen[ch] = true
	}

	if cfg.Limits.VMax <= 0 {
		return fmt.Errorf("limits: v_max must be positive, got %g", cfg.Limits.VMax)
	}
	if cfg.Limits.VMax > cfg.DAC.VoltageFullScale {
		return fmt.Errorf("limits: v_max %g exceeds the DAC full scale of %g",
			cfg.Limits.VMax, cfg.DAC.VoltageFullScale)
	}
	if cfg.Limits.Resistance <= 0 {
		return fmt.Errorf("limits: resistance must be positive, got %g", cfg.Limits.Resistance)
	}

	if cfg.Ramp.Steps <= 0 {
		return fmt.Errorf("ramp: steps must be positive, got %d", cfg.Ramp.Steps)
	}
	if _, err := psu.EasingByName(cfg.Ramp.Easing); err != nil {
		return fmt.Errorf("ramp: %w", err)
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}
