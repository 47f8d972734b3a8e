package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open opens the connection to the printer
	Open() error

	// Write sends data to the printer
	Write(data []byte) (int, error)

	// Read reads data from the printer
	Read(buf []byte) (int, error)

	// Close closes the connection to the printer. For buffered transports
	// it returns once the printer or spooler has accepted the data.
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool
}

// Prober is implemented by adapters that can ask the printer whether it is
// online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ContextWriter is implemented by adapters whose writes can be abandoned
// when ctx is done.
type ContextWriter interface {
	WriteContext(ctx context.Context, data []byte) (int, error)
}

var (
	errNotOpen     = errors.New("device not open")
	errAlreadyOpen = errors.New("device already open")
	errNoInput     = errors.New("input not available")
)

// ErrOffline is returned by Probe when the printer reports itself offline.
var ErrOffline = errors.New("printer reports offline")

// ParseStatus interprets the reply to DLE EOT 1. Bits 1 and 4 are fixed
// to 1, bits 0 and 7 to 0. Bit 3 set means offline.
func ParseStatus(b byte) error {
	if b&0x93 != 0x12 {
		return fmt.Errorf("unexpected status byte 0x%02x", b)
	}
	if b&0x08 != 0 {
		return ErrOffline
	}
	return nil
}
