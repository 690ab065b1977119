//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	uart = machine.UART0
	i2c  = machine.I2C0

	// Serial buffer for one command frame
	serialBuffer [16]byte
	serialPos    int
	collecting   bool
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	i2c.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
	})

	// Drive every output to zero before accepting commands, so a
	// reboot never leaves stale voltages on the rails.
	zeroAllOutputs()

	// Main loop
	for {
		processSerial()
		time.Sleep(100 * time.Microsecond)
	}
}

// processSerial consumes available bytes and assembles command frames.
// A frame starts at 's' and ends at 'e'; everything outside those
// sentinels (including the host's "hello world" flush) is discarded.
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == 's' {
			// Start of frame, restart collection unconditionally
			collecting = true
			serialPos = 0
			continue
		}

		if !collecting {
			continue
		}

		if data == 'e' {
			handleFrame(serialBuffer[:serialPos])
			collecting = false
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong frame - discard it
			collecting = false
			serialPos = 0
		}
	}
}

// handleFrame parses "<channel> <mode> <value> " (the sentinels are
// already stripped) and programs the addressed DAC output.
func handleFrame(frame []byte) {
	channel, rest, ok := parseUint(frame)
	if !ok {
		return
	}
	mode, rest, ok := parseUint(rest)
	if !ok {
		return
	}
	value, _, ok := parseUint(rest)
	if !ok {
		return
	}

	if channel >= MAX_CHANNELS {
		return
	}
	if mode != MODE_VOLTAGE && mode != MODE_CURRENT {
		return
	}
	if value > DAC_MAX_CODE {
		value = DAC_MAX_CODE
	}

	writeOutput(channel, mode, value)
}

// parseUint reads one space-delimited decimal field, returning the
// remainder of the input after the field.
func parseUint(in []byte) (uint16, []byte, bool) {
	i := 0
	for i < len(in) && in[i] == ' ' {
		i++
	}
	start := i

	var v uint16
	for i < len(in) && in[i] >= '0' && in[i] <= '9' {
		v = v*10 + uint16(in[i]-'0')
		i++
	}
	if i == start {
		return 0, nil, false
	}
	return v, in[i:], true
}

// writeOutput programs one MCP4728 output. Supply channel k lives on
// chip k/2; within a chip, outputs A/B hold channel k's voltage and
// current when k is even, C/D when k is odd.
func writeOutput(channel, mode, value uint16) {
	addr := uint16(MCP4728_BASE_ADDR) + channel/2
	dacChannel := (channel%2)*2 + mode

	// Multi-write command: internal reference, gain x2, no power-down.
	buf := []byte{
		0x40 | byte(dacChannel<<1),
		0x90 | byte(value>>8),
		byte(value & 0xFF),
	}
	i2c.Tx(addr, buf, nil)
}

// zeroAllOutputs writes code 0 to every DAC output on every chip.
func zeroAllOutputs() {
	for channel := uint16(0); channel < MAX_CHANNELS; channel++ {
		writeOutput(channel, MODE_VOLTAGE, 0)
		writeOutput(channel, MODE_CURRENT, 0)
	}
}
