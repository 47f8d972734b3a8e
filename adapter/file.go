package adapter

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FileAdapter writes to a raw printer device node such as /dev/usb/lp0.
type FileAdapter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileAdapter creates an adapter for a device path.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

// Open opens the device node for writing.
func (a *FileAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		return errAlreadyOpen
	}
	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.path, err)
	}
	a.file = f
	return nil
}

func (a *FileAdapter) current() (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil, errNotOpen
	}
	return a.file, nil
}

// Write sends data to the device.
func (a *FileAdapter) Write(data []byte) (int, error) {
	f, err := a.current()
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

// Read is not supported on write-only device nodes.
func (a *FileAdapter) Read(buf []byte) (int, error) {
	if _, err := a.current(); err != nil {
		return 0, err
	}
	return 0, errNoInput
}

// Probe checks that the device node still exists.
func (a *FileAdapter) Probe(ctx context.Context) error {
	if _, err := a.current(); err != nil {
		return err
	}
	_, err := os.Stat(a.path)
	return err
}

// Close flushes and closes the device node.
func (a *FileAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// IsOpen returns whether the device node is open
func (a *FileAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file != nil
}
