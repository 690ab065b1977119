package psu

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the supply's USB-serial bridge.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds reads on the otherwise write-only link.
	DefaultReadTimeout = time.Second
)

// Serial is a Transport backed by a physical serial port.
type Serial struct {
	port        string
	baudRate    int
	readTimeout time.Duration

	conn serial.Port
	mu   sync.RWMutex
	open bool
}

// NewSerial creates a serial transport for the named port. Zero baud
// rate and timeout select DefaultBaudRate and DefaultReadTimeout.
func NewSerial(port string, baudRate int, readTimeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		readTimeout: readTimeout,
	}
}

// Open opens the serial port.
func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return fmt.Errorf("already open")
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
	}

	conn, err := serial.Open(s.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	if err := conn.SetReadTimeout(s.readTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.port, err)
	}

	s.conn = conn
	s.open = true

	return nil
}

// Write sends raw bytes to the supply.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		return 0, fmt.Errorf("not open")
	}

	n, err := s.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write to serial port %s: %w", s.port, err)
	}
	return n, nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.open = false
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.port, err)
	}

	return nil
}

// IsOpen reports whether the port is currently open.
func (s *Serial) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// Port returns the configured port name.
func (s *Serial) Port() string {
	return s.port
}

// String describes the transport for logs.
func (s *Serial) String() string {
	return fmt.Sprintf("serial %s @ %d baud", s.port, s.baudRate)
}
