// Package backend implements the two print strategies: raw ESC/POS to a
// thermal printer and full-page printing through the OS spooler. Every
// failure is converted to a job.Result here.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nixxel-company-limited/escpos-print-bridge/channel"
	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
	"github.com/nixxel-company-limited/escpos-print-bridge/receipt"
)

// Escpos prints receipts on a thermal printer. Jobs for the same device
// name never overlap.
type Escpos struct {
	channel channel.Channel
	locks   *channel.KeyedMutex
	logger  *slog.Logger
}

// NewEscpos creates the backend. Backends that share a device must share
// locks.
func NewEscpos(ch channel.Channel, locks *channel.KeyedMutex, logger *slog.Logger) *Escpos {
	if locks == nil {
		locks = channel.NewKeyedMutex()
	}
	return &Escpos{channel: ch, locks: locks, logger: logging.Or(logger)}
}

// Execute encodes doc and sends it to cfg.DeviceName.
func (b *Escpos) Execute(ctx context.Context, doc receipt.Document, cfg config.PrinterConfig) job.Result {
	return b.run(ctx, cfg, func() escpos.Job { return escpos.Encode(doc, cfg) })
}

// SendRaw sends bytes that are already ESC/POS encoded.
func (b *Escpos) SendRaw(ctx context.Context, data []byte, cfg config.PrinterConfig) job.Result {
	return b.run(ctx, cfg, func() escpos.Job { return escpos.RawJob("raw", data) })
}

func (b *Escpos) run(ctx context.Context, cfg config.PrinterConfig, encode func() escpos.Job) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = job.Failed(job.TransportError, fmt.Sprintf("panic: %v", r))
		}
	}()

	device := strings.TrimSpace(cfg.DeviceName)
	if device == "" {
		return job.Failed(job.MissingPrinterConfig, "deviceName is not configured")
	}

	unlock, err := b.locks.Lock(ctx, device)
	if err != nil {
		return job.Failed(job.DeviceUnavailable, fmt.Sprintf("waiting for %s: %v", device, err))
	}
	defer unlock()

	timeout := cfg.ConnectTimeout()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	h, err := b.channel.Connect(connectCtx, device)
	cancel()
	if err != nil {
		return failure(err)
	}
	defer h.Close()

	aliveCtx, cancel := context.WithTimeout(ctx, timeout)
	alive := b.channel.CheckAlive(aliveCtx, h)
	cancel()
	if !alive {
		b.logger.Warn("printer may be disconnected, sending anyway", "device", device)
	}

	if err := b.channel.Send(ctx, h, encode(), timeout); err != nil {
		return failure(err)
	}
	return job.OK()
}

func failure(err error) job.Result {
	switch {
	case errors.Is(err, channel.ErrSendTimeout):
		return job.Failed(job.SendTimeout, err.Error())
	case errors.Is(err, channel.ErrDeviceUnavailable):
		return job.Failed(job.DeviceUnavailable, err.Error())
	default:
		return job.Failed(job.TransportError, err.Error())
	}
}
