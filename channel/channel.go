// Package channel manages connections to a named printer resource and the
// delivery of encoded jobs to it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/adapter"
	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
)

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrSendTimeout       = errors.New("send timeout")
	ErrTransport         = errors.New("transport error")
)

// Channel is the capability set a print backend needs from a device.
type Channel interface {
	// Connect opens a handle to the named device.
	Connect(ctx context.Context, deviceName string) (*Handle, error)
	// CheckAlive is advisory and never fails.
	CheckAlive(ctx context.Context, h *Handle) bool
	// Send delivers job and consumes the handle.
	Send(ctx context.Context, h *Handle, job escpos.Job, timeout time.Duration) error
}

// Handle is an open connection owned by one send operation.
type Handle struct {
	name    string
	adapter adapter.Adapter

	// set once Send takes ownership of closing the adapter
	consumed atomic.Bool
}

// NewHandle wraps an open adapter. The adapter may be nil for test doubles.
func NewHandle(name string, a adapter.Adapter) *Handle {
	return &Handle{name: name, adapter: a}
}

// DeviceName returns the name the handle was connected with.
func (h *Handle) DeviceName() string {
	return h.name
}

// Close releases a handle that was never sent on. After Send it returns
// immediately: Send closes the adapter itself, possibly in the background
// when the transport stalled.
func (h *Handle) Close() error {
	if h == nil || h.adapter == nil || h.consumed.Swap(true) {
		return nil
	}
	return h.adapter.Close()
}

// Opener resolves a device name into an unopened adapter.
type Opener func(name string, timeout time.Duration) (adapter.Adapter, error)

// Device is the Channel implementation backed by the adapter package.
type Device struct {
	open   Opener
	logger *slog.Logger
}

// NewDevice returns a Channel resolving names with adapter.ForDevice.
func NewDevice(logger *slog.Logger) *Device {
	return NewDeviceWithOpener(adapter.ForDevice, logger)
}

// NewDeviceWithOpener returns a Channel using a custom resolver.
func NewDeviceWithOpener(open Opener, logger *slog.Logger) *Device {
	return &Device{open: open, logger: logging.Or(logger)}
}

// Connect resolves and opens the device, bounded by ctx.
func (d *Device) Connect(ctx context.Context, deviceName string) (*Handle, error) {
	timeout := time.Duration(0)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	type opened struct {
		a   adapter.Adapter
		err error
	}
	done := make(chan opened, 1)
	go func() {
		a, err := d.open(deviceName, timeout)
		if err != nil {
			done <- opened{err: err}
			return
		}
		if err := a.Open(); err != nil {
			a.Close()
			done <- opened{err: err}
			return
		}
		done <- opened{a: a}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, deviceName, res.err)
		}
		d.logger.Debug("device connected", "device", deviceName)
		return NewHandle(deviceName, res.a), nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.a != nil {
				res.a.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, deviceName, ctx.Err())
	}
}

// CheckAlive probes the printer when the transport supports it. It never
// returns an error; false only means the printer may not be listening.
func (d *Device) CheckAlive(ctx context.Context, h *Handle) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("status probe panicked", "panic", r)
			alive = false
		}
	}()

	if h == nil || h.adapter == nil || !h.adapter.IsOpen() {
		return false
	}
	prober, ok := h.adapter.(adapter.Prober)
	if !ok {
		return true
	}

	done := make(chan error, 1)
	go func() { done <- prober.Probe(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			d.logger.Debug("status probe failed", "device", h.name, "error", err)
		}
		return err == nil
	case <-ctx.Done():
		return false
	}
}

// Send writes every chunk in order and closes the handle. The transport
// must acknowledge completion within timeout. Bytes already written when
// the timeout fires are lost; nothing is retried.
func (d *Device) Send(ctx context.Context, h *Handle, job escpos.Job, timeout time.Duration) error {
	if h == nil || h.adapter == nil {
		return fmt.Errorf("%w: no open handle", ErrTransport)
	}
	if h.consumed.Swap(true) {
		return fmt.Errorf("%w: handle already used", ErrTransport)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		for _, c := range job.Chunks() {
			if ctx.Err() != nil {
				done <- ctx.Err()
				return
			}
			if _, err := write(ctx, h.adapter, c.Data); err != nil {
				done <- fmt.Errorf("%w: %s: %v", ErrTransport, c.Origin, err)
				return
			}
		}
		if err := h.adapter.Close(); err != nil {
			done <- fmt.Errorf("%w: %v", ErrTransport, err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			d.logger.Debug("job delivered", "device", h.name, "bytes", job.Size())
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: %s after %s", ErrSendTimeout, h.name, timeout)
		case errors.Is(err, context.Canceled):
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return err
	case <-ctx.Done():
		go h.adapter.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrSendTimeout, h.name, timeout)
		}
		return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}
}

func write(ctx context.Context, a adapter.Adapter, data []byte) (int, error) {
	if cw, ok := a.(adapter.ContextWriter); ok {
		return cw.WriteContext(ctx, data)
	}
	return a.Write(data)
}
