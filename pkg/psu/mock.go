package psu

import (
	"fmt"
	"sync"
)

// Mock is an in-memory Transport that records every frame written to
// it. Tests use it to assert on exact wire traffic, count sessions, and
// inject transport faults.
type Mock struct {
	// OpenErr, WriteErr and CloseErr are returned by the corresponding
	// method when non-nil. A failed Open leaves the transport closed; a
	// failed Close still transitions it to closed.
	OpenErr  error
	WriteErr error
	CloseErr error
	// FailAfter delays WriteErr: the first FailAfter writes succeed and
	// are recorded, later ones fail. Zero fails from the first write.
	FailAfter int

	mu     sync.RWMutex
	open   bool
	frames [][]byte
	writes int
	opens  int
	closes int
}

// NewMock creates an empty recording transport.
func NewMock() *Mock {
	return &Mock{}
}

// Open simulates acquiring the link.
func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return fmt.Errorf("already open")
	}
	if m.OpenErr != nil {
		return m.OpenErr
	}

	m.open = true
	m.opens++

	return nil
}

// Write records the frame.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, fmt.Errorf("not open")
	}
	if m.WriteErr != nil && m.writes >= m.FailAfter {
		return 0, m.WriteErr
	}

	frame := make([]byte, len(p))
	copy(frame, p)
	m.frames = append(m.frames, frame)
	m.writes++

	return len(p), nil
}

// Close simulates releasing the link.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil
	}

	m.open = false
	m.closes++

	if m.CloseErr != nil {
		return m.CloseErr
	}
	return nil
}

// IsOpen reports whether the transport is currently open.
func (m *Mock) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Frames returns a copy of every frame written so far, oldest first.
func (m *Mock) Frames() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Commands returns the recorded frames as strings, oldest first.
func (m *Mock) Commands() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.frames))
	for i, f := range m.frames {
		out[i] = string(f)
	}
	return out
}

// OpenCount returns how many times Open succeeded.
func (m *Mock) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens
}

// CloseCount returns how many times Close was called on an open
// transport.
func (m *Mock) CloseCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closes
}

// Reset discards recorded frames and counters, keeping fault settings.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames = nil
	m.writes = 0
	m.opens = 0
	m.closes = 0
}

// String describes the transport for logs.
func (m *Mock) String() string {
	return "mock"
}
