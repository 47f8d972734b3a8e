package adapter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
)

// NetAdapter sends raw bytes to a printer listening on a TCP port,
// usually 9100.
type NetAdapter struct {
	address string
	timeout time.Duration
	conn    net.Conn
	mu      sync.Mutex
}

// NewNetAdapter creates an adapter for host:port. The timeout bounds the
// dial and status probes.
func NewNetAdapter(address string, timeout time.Duration) *NetAdapter {
	return &NetAdapter{address: address, timeout: timeout}
}

// Open dials the printer.
func (a *NetAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return errAlreadyOpen
	}

	conn, err := net.DialTimeout("tcp", a.address, a.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	a.conn = conn
	return nil
}

func (a *NetAdapter) current() (net.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, errNotOpen
	}
	return a.conn, nil
}

// Write sends data to the printer. It does not hold the adapter lock so
// that Close can interrupt a blocked write.
func (a *NetAdapter) Write(data []byte) (int, error) {
	conn, err := a.current()
	if err != nil {
		return 0, err
	}
	n, err := conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

// Read reads data from the printer
func (a *NetAdapter) Read(buf []byte) (int, error) {
	conn, err := a.current()
	if err != nil {
		return 0, err
	}
	return conn.Read(buf)
}

// Probe sends DLE EOT 1 and waits for the status byte.
func (a *NetAdapter) Probe(ctx context.Context) error {
	conn, err := a.current()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(a.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(escpos.StatusRequest); err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		return fmt.Errorf("status read failed: %w", err)
	}
	return ParseStatus(buf[0])
}

// Close closes the connection. Closing twice is not an error.
func (a *NetAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

// IsOpen returns whether the connection is open
func (a *NetAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}
