package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Serial.BootSettle)
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.CommandSettle)
	assert.Equal(t, 4096, cfg.DAC.Resolution)
	assert.Equal(t, 30.0, cfg.DAC.VoltageFullScale)
	assert.Equal(t, 200.0, cfg.DAC.CurrentScaleFactor)
	assert.Equal(t, 1.1, cfg.DAC.CurrentSafetyFactor)
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13, 14, 15}, cfg.Channels)
	assert.Equal(t, 10.0, cfg.Limits.VMax)
	assert.Equal(t, 50.0, cfg.Limits.Resistance)
	assert.Equal(t, 10, cfg.Ramp.Steps)
	assert.Equal(t, "in-out-sine", cfg.Ramp.Easing)
	assert.True(t, cfg.ZeroOnClose)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, Validate(cfg))
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyUSB0"
  baud_rate: 19200
  read_timeout: 500ms
  boot_settle: 5s
  command_settle: 200ms

dac:
  resolution: 4096
  voltage_full_scale: 24.0
  current_scale_factor: 150.0
  current_safety_factor: 1.2

channels: [0, 1, 2, 3]

limits:
  v_max: 12.0
  resistance: 100.0

ramp:
  steps: 20
  easing: linear

zero_on_close: false

log:
  level: debug
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 19200, cfg.Serial.BaudRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Serial.BootSettle)
	assert.Equal(t, 200*time.Millisecond, cfg.Serial.CommandSettle)
	assert.Equal(t, 24.0, cfg.DAC.VoltageFullScale)
	assert.Equal(t, 150.0, cfg.DAC.CurrentScaleFactor)
	assert.Equal(t, 1.2, cfg.DAC.CurrentSafetyFactor)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.Channels)
	assert.Equal(t, 12.0, cfg.Limits.VMax)
	assert.Equal(t, 100.0, cfg.Limits.Resistance)
	assert.Equal(t, 20, cfg.Ramp.Steps)
	assert.Equal(t, "linear", cfg.Ramp.Easing)
	assert.False(t, cfg.ZeroOnClose)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"

zero_on_close: false
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)              // default
	assert.Equal(t, 30.0, cfg.DAC.VoltageFullScale)         // default
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13, 14, 15}, cfg.Channels) // default
	// An explicit false must survive the defaulting pass.
	assert.False(t, cfg.ZeroOnClose)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Limits.VMax = 15.0
	cfg.ZeroOnClose = false

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 15.0, loaded.Limits.VMax)
	assert.False(t, loaded.ZeroOnClose)
}

func TestCalibration(t *testing.T) {
	cfg := Default()
	cfg.DAC.Resolution = 256
	cfg.DAC.VoltageFullScale = 5.0

	cal := cfg.Calibration()
	assert.Equal(t, 256, cal.Resolution)
	assert.Equal(t, 5.0, cal.VoltageFullScale)
	assert.Equal(t, 200.0, cal.CurrentScaleFactor)
	assert.Equal(t, 1.1, cal.CurrentSafetyFactor)
}

func TestControllerOptions(t *testing.T) {
	cfg := Default()
	cfg.Limits.VMax = 12.0
	cfg.Serial.BootSettle = 5 * time.Second
	cfg.ZeroOnClose = false

	opts := cfg.ControllerOptions()
	assert.Equal(t, 12.0, opts.VMax)
	assert.Equal(t, 50.0, opts.Resistance)
	assert.Equal(t, 5*time.Second, opts.BootSettle)
	assert.Equal(t, 100*time.Millisecond, opts.CommandSettle)
	assert.False(t, opts.ZeroOnClose)
}

func TestRampOptions(t *testing.T) {
	cfg := Default()
	cfg.Ramp.Steps = 25

	ropts, err := cfg.RampOptions()
	require.NoError(t, err)
	assert.Equal(t, 25, ropts.Steps)
	assert.NotNil(t, ropts.Easing)

	cfg.Ramp.Easing = "sideways"
	_, err = cfg.RampOptions()
	assert.Error(t, err)
}
