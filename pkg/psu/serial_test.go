package psu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSerial_Defaults(t *testing.T) {
	s := NewSerial("COM3", 0, 0)

	assert.Equal(t, "COM3", s.Port())
	assert.Equal(t, "serial COM3 @ 9600 baud", s.String())
	assert.False(t, s.IsOpen())
}

func TestNewSerial_Explicit(t *testing.T) {
	s := NewSerial("/dev/ttyUSB0", 115200, 5*time.Second)

	assert.Equal(t, "/dev/ttyUSB0", s.Port())
	assert.Equal(t, "serial /dev/ttyUSB0 @ 115200 baud", s.String())
}

func TestSerial_WriteNotOpen(t *testing.T) {
	s := NewSerial("COM3", 0, 0)

	_, err := s.Write([]byte("s8 0 0 e"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}

func TestSerial_CloseNotOpen(t *testing.T) {
	s := NewSerial("COM3", 0, 0)
	assert.NoError(t, s.Close())
}
