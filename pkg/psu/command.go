package psu

import (
	"fmt"

	"github.com/itohio/gopsu/pkg/dac"
)

// Mode selects which DAC register of a channel a command targets.
type Mode uint8

const (
	// ModeVoltage addresses the output voltage register.
	ModeVoltage Mode = 0
	// ModeCurrent addresses the current limit register.
	ModeCurrent Mode = 1
)

// String returns a human-readable register name for logging.
func (m Mode) String() string {
	switch m {
	case ModeVoltage:
		return "voltage"
	case ModeCurrent:
		return "current"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Command is one register write addressed to one supply channel.
type Command struct {
	Channel int
	Mode    Mode
	Code    dac.Code
}

// Frame encodes the command in the supply's serial format:
//
//	s<channel> <mode> <code> e
//
// Fields are space-separated decimal with 's' and 'e' as start and end
// sentinels. The firmware parser keys on the sentinels, so there is no
// trailing newline and no checksum. Frame performs no range checking;
// callers saturate codes first.
func (c Command) Frame() []byte {
	return []byte(fmt.Sprintf("s%d %d %d e", c.Channel, c.Mode, c.Code))
}

// String returns the frame as a string, for logs and tests.
func (c Command) String() string {
	return string(c.Frame())
}
