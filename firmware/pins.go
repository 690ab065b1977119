//go:build tinygo

package main

const (
	// Serial configuration. The host paces itself (100 ms between
	// frames), so 9600 baud leaves plenty of headroom for the longest
	// frame "s15 1 4095 e" (12 bytes).
	UART_BAUD_RATE = 9600

	// I2C bus frequency for the DAC chips.
	I2C_FREQUENCY = 400000

	// MCP4728 quad DAC addressing. Each supply channel needs two
	// analog outputs (voltage setpoint and current limit), so one
	// MCP4728 serves two supply channels. Eight address-selectable
	// chips (0x60-0x67) cover the full 16 channels.
	MCP4728_BASE_ADDR = 0x60
	MAX_CHANNELS      = 16

	// 12-bit DAC range
	DAC_MAX_CODE = 4095

	// Command modes
	MODE_VOLTAGE = 0
	MODE_CURRENT = 1
)
