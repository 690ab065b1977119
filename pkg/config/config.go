package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gopsu/pkg/dac"
	"github.com/itohio/gopsu/pkg/psu"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig `yaml:"serial"`
	DAC         DACConfig    `yaml:"dac"`
	Channels    []int        `yaml:"channels"`
	Limits      LimitsConfig `yaml:"limits"`
	Ramp        RampConfig   `yaml:"ramp"`
	ZeroOnClose bool         `yaml:"zero_on_close"`
	Log         LogConfig    `yaml:"log"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port          string        `yaml:"port"`
	BaudRate      int           `yaml:"baud_rate"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	BootSettle    time.Duration `yaml:"boot_settle"`
	CommandSettle time.Duration `yaml:"command_settle"`
}

// DACConfig contains the DAC calibration constants of the supply build.
type DACConfig struct {
	Resolution          int     `yaml:"resolution"`
	VoltageFullScale    float64 `yaml:"voltage_full_scale"`
	CurrentScaleFactor  float64 `yaml:"current_scale_factor"`
	CurrentSafetyFactor float64 `yaml:"current_safety_factor"`
}

// LimitsConfig contains the output safety limits.
type LimitsConfig struct {
	VMax       float64 `yaml:"v_max"`      // volts
	Resistance float64 `yaml:"resistance"` // ohms
}

// RampConfig contains voltage ramp parameters.
type RampConfig struct {
	Steps  int    `yaml:"steps"`
	Easing string `yaml:"easing"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	cal := dac.DefaultCalibration()

	return &Config{
		Serial: SerialConfig{
			Port:          "COM3", // Default for Windows, should be "/dev/ttyUSB0" on Linux/Mac
			BaudRate:      psu.DefaultBaudRate,
			ReadTimeout:   psu.DefaultReadTimeout,
			BootSettle:    psu.DefaultBootSettle,
			CommandSettle: psu.DefaultCommandSettle,
		},
		DAC: DACConfig{
			Resolution:          cal.Resolution,
			VoltageFullScale:    cal.VoltageFullScale,
			CurrentScaleFactor:  cal.CurrentScaleFactor,
			CurrentSafetyFactor: cal.CurrentSafetyFactor,
		},
		Channels: []int{8, 9, 10, 11, 12, 13, 14, 15},
		Limits: LimitsConfig{
			VMax:       psu.DefaultVMax,
			Resistance: psu.DefaultResistance,
		},
		Ramp: RampConfig{
			Steps:  psu.DefaultRampSteps,
			Easing: "in-out-sine",
		},
		ZeroOnClose: true,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist
// or fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Calibration maps the DAC section onto the converter's calibration.
func (c *Config) Calibration() dac.Calibration {
	return dac.Calibration{
		Resolution:          c.DAC.Resolution,
		VoltageFullScale:    c.DAC.VoltageFullScale,
		CurrentScaleFactor:  c.DAC.CurrentScaleFactor,
		CurrentSafetyFactor: c.DAC.CurrentSafetyFactor,
	}
}

// ControllerOptions maps the limit, timing and shutdown sections onto
// controller options. The caller supplies Logger and Clock.
func (c *Config) ControllerOptions() psu.Options {
	return psu.Options{
		VMax:          c.Limits.VMax,
		Resistance:    c.Limits.Resistance,
		BootSettle:    c.Serial.BootSettle,
		CommandSettle: c.Serial.CommandSettle,
		ZeroOnClose:   c.ZeroOnClose,
	}
}

// RampOptions resolves the ramp section, including the easing name.
func (c *Config) RampOptions() (psu.RampOptions, error) {
	fn, err := psu.EasingByName(c.Ramp.Easing)
	if err != nil {
		return psu.RampOptions{}, fmt.Errorf("ramp: %w", err)
	}
	return psu.RampOptions{
		Steps:  c.Ramp.Steps,
		Easing: fn,
	}, nil
}

// ensureDefaults ensures that all required fields have default values if
// missing. ZeroOnClose is left alone: false is a deliberate choice.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.BootSettle == 0 {
		c.Serial.BootSettle = def.Serial.BootSettle
	}
	if c.Serial.CommandSettle == 0 {
		c.Serial.CommandSettle = def.Serial.CommandSettle
	}

	if c.DAC.Resolution == 0 {
		c.DAC.Resolution = def.DAC.Resolution
	}
	if c.DAC.VoltageFullScale == 0 {
		c.DAC.VoltageFullScale = def.DAC.VoltageFullScale
	}
	if c.DAC.CurrentScaleFactor == 0 {
		c.DAC.CurrentScaleFactor = def.DAC.CurrentScaleFactor
	}
	if c.DAC.CurrentSafetyFactor == 0 {
		c.DAC.CurrentSafetyFactor = def.DAC.CurrentSafetyFactor
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	if c.Limits.VMax == 0 {
		c.Limits.VMax = def.Limits.VMax
	}
	if c.Limits.Resistance == 0 {
		c.Limits.Resistance = def.Limits.Resistance
	}

	if c.Ramp.Steps == 0 {
		c.Ramp.Steps = def.Ramp.Steps
	}
	if c.Ramp.Easing == "" {
		c.Ramp.Easing = def.Ramp.Easing
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
