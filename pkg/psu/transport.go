package psu

// Transport is the byte pipe between the controller and the supply.
// Implementations carry no protocol knowledge; framing and pacing live
// in the Controller.
type Transport interface {
	// Open acquires the underlying link. Opening an open transport is
	// an error.
	Open() error
	// Write sends raw bytes to the supply.
	Write(p []byte) (int, error)
	// Close releases the link. Closing a closed transport is a no-op.
	Close() error
	// IsOpen reports whether the link is currently usable.
	IsOpen() bool
}

// Ensure Serial implements Transport.
var _ Transport = (*Serial)(nil)

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)
