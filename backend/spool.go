package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/nixxel-company-limited/escpos-print-bridge/adapter"
	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
)

// PageRequest asks for a full page to be printed through the OS spooler.
type PageRequest struct {
	// URL of the page to print. Empty means the configured app URL.
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Renderer turns a page into a printable PDF.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// Spooler submits a document to the OS print subsystem. An empty device
// selects the system default printer.
type Spooler interface {
	Submit(ctx context.Context, device, title string, document []byte) error
}

// SpoolError carries the error code reported by the print subsystem.
type SpoolError struct {
	Code string
	Err  error
}

func (e *SpoolError) Error() string {
	if e.Err == nil {
		return "spooler error " + e.Code
	}
	return fmt.Sprintf("spooler error %s: %v", e.Code, e.Err)
}

func (e *SpoolError) Unwrap() error { return e.Err }

// PageSpool prints full pages. Unlike Escpos it tolerates a missing device
// name and lets the OS pick its default printer. Requests are not
// serialized; the spooler queues them itself.
type PageSpool struct {
	renderer Renderer
	spooler  Spooler
	logger   *slog.Logger
}

// NewPageSpool creates the backend.
func NewPageSpool(r Renderer, s Spooler, logger *slog.Logger) *PageSpool {
	return &PageSpool{renderer: r, spooler: s, logger: logging.Or(logger)}
}

// Execute renders req and submits it.
func (b *PageSpool) Execute(ctx context.Context, req PageRequest, snap config.Snapshot) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = job.Failed(job.SpoolerError, fmt.Sprintf("panic: %v", r))
		}
	}()

	target := req.URL
	if target == "" {
		target = snap.AppURL
	}
	if target == "" {
		return job.Failed(job.SpoolerError, "no page to print: appUrl is not configured")
	}

	device := spoolDevice(snap.DeviceName)
	if device == "" {
		b.logger.Debug("no spooler queue configured, using system default", "configured", snap.DeviceName)
	}

	ctx, cancel := context.WithTimeout(ctx, snap.SpoolTimeout())
	defer cancel()

	doc, err := b.renderer.Render(ctx, target)
	if err != nil {
		return job.Failed(job.SpoolerError, fmt.Sprintf("render %s: %v", target, err))
	}

	title := req.Title
	if title == "" {
		title = target
	}
	if err := b.spooler.Submit(ctx, device, title, doc); err != nil {
		var se *SpoolError
		if errors.As(err, &se) {
			return job.Failed(job.SpoolerError, se.Error())
		}
		return job.Failed(job.SpoolerError, err.Error())
	}
	return job.OK()
}

// spoolDevice returns the queue to submit to. Device names that address a
// raw transport are not spooler queues, so they fall back to the default.
func spoolDevice(name string) string {
	if !adapter.IsQueueName(name) {
		return ""
	}
	return adapter.QueueName(name)
}

// LPSpooler submits documents with the CUPS lp client.
type LPSpooler struct {
	Command string
}

// NewLPSpooler returns a spooler using lp from PATH.
func NewLPSpooler() LPSpooler {
	return LPSpooler{Command: "lp"}
}

// Submit pipes document into lp. A non-zero exit status becomes a
// SpoolError carrying the status as its code.
func (s LPSpooler) Submit(ctx context.Context, device, title string, document []byte) error {
	args := []string{"-t", title}
	if device != "" {
		args = append(args, "-d", device)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Command, args...)
	cmd.Stdin = bytes.NewReader(document)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &SpoolError{Code: "timeout", Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		se := &SpoolError{Code: strconv.Itoa(exitErr.ExitCode())}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			se.Err = errors.New(msg)
		}
		return se
	}
	return &SpoolError{Code: "exec", Err: err}
}
