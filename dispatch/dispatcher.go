// Package dispatch is the public entry point of the bridge. It routes each
// request to a backend, reads configuration once per request and reports a
// uniform job.Result.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nixxel-company-limited/escpos-print-bridge/backend"
	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/history"
	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
	"github.com/nixxel-company-limited/escpos-print-bridge/receipt"
)

// RequestKind selects what a request does. The values match the channel
// names the web UI invokes.
type RequestKind string

const (
	ReceiptPrint   RequestKind = "print-escpos"
	PageSpoolPrint RequestKind = "print-silent"
	ConfigRead     RequestKind = "get-config"
)

// rawPrint is used for jobs arriving on the raw passthrough port. It is
// not reachable through Handle.
const rawPrint = "print-raw"

// ReceiptBackend prints on a thermal printer.
type ReceiptBackend interface {
	Execute(ctx context.Context, doc receipt.Document, cfg config.PrinterConfig) job.Result
	SendRaw(ctx context.Context, data []byte, cfg config.PrinterConfig) job.Result
}

// PageBackend prints full pages through the OS spooler.
type PageBackend interface {
	Execute(ctx context.Context, req backend.PageRequest, snap config.Snapshot) job.Result
}

// Recorder persists finished jobs.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Response is the outcome of Handle. Print kinds set Result; ConfigRead
// sets Config.
type Response struct {
	Result *job.Result      `json:"result,omitempty"`
	Config *config.Snapshot `json:"config,omitempty"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the event sink.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRecorder journals every print job.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// Dispatcher is stateless between requests and safe for concurrent use.
type Dispatcher struct {
	config   config.Provider
	receipts ReceiptBackend
	pages    PageBackend
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher.
func New(provider config.Provider, receipts ReceiptBackend, pages PageBackend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:   provider,
		receipts: receipts,
		pages:    pages,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Or(d.logger)
	return d
}

// Handle decodes payload according to kind and routes the request.
func (d *Dispatcher) Handle(ctx context.Context, kind RequestKind, payload json.RawMessage) Response {
	snap := d.config.Snapshot()

	switch kind {
	case ReceiptPrint:
		var p receipt.Payload
		if err := decode(payload, &p); err != nil {
			return d.reject(kind, job.InvalidPayload, err.Error())
		}
		doc, err := p.Document(receipt.Framing{
			Header:   snap.DefaultHeader,
			Subtitle: snap.DefaultSubtitle,
			Footer:   snap.DefaultFooter,
		})
		if err != nil {
			return d.reject(kind, job.InvalidPayload, err.Error())
		}
		res := d.printReceipt(ctx, snap, doc)
		return Response{Result: &res}

	case PageSpoolPrint:
		var req backend.PageRequest
		if err := decode(payload, &req); err != nil {
			return d.reject(kind, job.InvalidPayload, err.Error())
		}
		res := d.printPage(ctx, snap, req)
		return Response{Result: &res}

	case ConfigRead:
		return Response{Config: &snap}

	default:
		return d.reject(kind, job.UnknownRequestKind, fmt.Sprintf("unknown request kind %q", kind))
	}
}

// PrintReceipt prints doc on the configured thermal printer.
func (d *Dispatcher) PrintReceipt(ctx context.Context, doc receipt.Document) job.Result {
	return d.printReceipt(ctx, d.config.Snapshot(), doc)
}

// PrintPage prints a full page through the OS spooler.
func (d *Dispatcher) PrintPage(ctx context.Context, req backend.PageRequest) job.Result {
	return d.printPage(ctx, d.config.Snapshot(), req)
}

// PrintRaw forwards already encoded ESC/POS bytes to the thermal printer.
func (d *Dispatcher) PrintRaw(ctx context.Context, data []byte) job.Result {
	snap := d.config.Snapshot()
	return d.run(ctx, rawPrint, snap.DeviceName, func() job.Result {
		return d.receipts.SendRaw(ctx, data, snap.PrinterConfig)
	})
}

// ReadConfig returns the current configuration snapshot.
func (d *Dispatcher) ReadConfig() config.Snapshot {
	return d.config.Snapshot()
}

func (d *Dispatcher) printReceipt(ctx context.Context, snap config.Snapshot, doc receipt.Document) job.Result {
	return d.run(ctx, string(ReceiptPrint), snap.DeviceName, func() job.Result {
		return d.receipts.Execute(ctx, doc, snap.PrinterConfig)
	})
}

func (d *Dispatcher) printPage(ctx context.Context, snap config.Snapshot, req backend.PageRequest) job.Result {
	return d.run(ctx, string(PageSpoolPrint), snap.DeviceName, func() job.Result {
		return d.pages.Execute(ctx, req, snap)
	})
}

func (d *Dispatcher) run(ctx context.Context, kind, device string, exec func() job.Result) job.Result {
	id := uuid.NewString()
	logger := d.logger.With("job_id", id, "kind", kind, "device", device)

	started := d.now()
	logger.Info("job start")
	res := exec()
	elapsed := d.now().Sub(started)

	if res.Success {
		logger.Info("job success", "duration", elapsed)
	} else {
		logger.Error("job failure", "error_kind", string(res.ErrorKind), "detail", res.Detail, "duration", elapsed)
	}

	if d.recorder != nil {
		entry := history.Entry{
			ID:        id,
			Kind:      kind,
			Device:    device,
			Success:   res.Success,
			ErrorKind: string(res.ErrorKind),
			Detail:    res.Detail,
			StartedAt: started,
			Duration:  elapsed,
		}
		if err := d.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn("failed to record job", "error", err)
		}
	}
	return res
}

func (d *Dispatcher) reject(kind RequestKind, errKind job.ErrorKind, detail string) Response {
	d.logger.Error("job failure", "kind", string(kind), "error_kind", string(errKind), "detail", detail)
	res := job.Failed(errKind, detail)
	return Response{Result: &res}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
