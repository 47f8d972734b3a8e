package backend

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-print-bridge/adapter"
	"github.com/nixxel-company-limited/escpos-print-bridge/channel"
	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
	"github.com/nixxel-company-limited/escpos-print-bridge/receipt"
)

// fakeChannel records what each Send delivered and whether sends ever
// overlapped.
type fakeChannel struct {
	mu          sync.Mutex
	connectErr  error
	sendErr     error
	alive       bool
	sendDelay   time.Duration
	connects    int
	sends       [][]byte
	inFlight    int
	maxInFlight int
}

func (f *fakeChannel) Connect(ctx context.Context, name string) (*channel.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return channel.NewHandle(name, nil), nil
}

func (f *fakeChannel) CheckAlive(ctx context.Context, h *channel.Handle) bool {
	return f.alive
}

func (f *fakeChannel) Send(ctx context.Context, h *channel.Handle, j escpos.Job, timeout time.Duration) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	var buf []byte
	for _, c := range j.Chunks() {
		buf = append(buf, c.Data...)
		time.Sleep(f.sendDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, buf)
	return nil
}

func printerConfig(device string) config.PrinterConfig {
	return config.Snapshot{PrinterConfig: config.PrinterConfig{
		DeviceName:       device,
		CharacterSet:     config.PC437USA,
		PaperColumns:     32,
		ConnectTimeoutMs: 1000,
	}}.Normalize().PrinterConfig
}

func TestEscposSuccess(t *testing.T) {
	ch := &fakeChannel{alive: true}
	b := NewEscpos(ch, nil, logging.Discard())

	doc := receipt.New(receipt.Header("SHOP"), receipt.Footer("Bye"))
	res := b.Execute(context.Background(), doc, printerConfig("POS58"))

	assert.Equal(t, job.OK(), res)
	require.Len(t, ch.sends, 1)
	assert.Equal(t, escpos.Encode(doc, printerConfig("POS58")).Bytes(), ch.sends[0])
}

func TestEscposMissingDevice(t *testing.T) {
	ch := &fakeChannel{alive: true}
	b := NewEscpos(ch, nil, logging.Discard())

	res := b.Execute(context.Background(), receipt.New(), printerConfig("  "))

	assert.False(t, res.Success)
	assert.Equal(t, job.MissingPrinterConfig, res.ErrorKind)
	assert.Equal(t, 0, ch.connects, "no connection attempted")
}

func TestEscposErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		connectErr error
		sendErr    error
		want       job.ErrorKind
	}{
		{"Unavailable", fmt.Errorf("%w: usb: cannot find printer", channel.ErrDeviceUnavailable), nil, job.DeviceUnavailable},
		{"Timeout", nil, fmt.Errorf("%w: POS58 after 1s", channel.ErrSendTimeout), job.SendTimeout},
		{"Transport", nil, fmt.Errorf("%w: broken pipe", channel.ErrTransport), job.TransportError},
		{"Unclassified", nil, fmt.Errorf("something odd"), job.TransportError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{alive: true, connectErr: tc.connectErr, sendErr: tc.sendErr}
			res := NewEscpos(ch, nil, logging.Discard()).Execute(context.Background(), receipt.New(), printerConfig("POS58"))

			assert.False(t, res.Success)
			assert.Equal(t, tc.want, res.ErrorKind)
			assert.NotEmpty(t, res.Detail)
		})
	}
}

func TestEscposSendsEvenWhenNotAlive(t *testing.T) {
	var logs bytes.Buffer
	ch := &fakeChannel{alive: false}
	b := NewEscpos(ch, nil, logging.New(&logs, false, logging.FormatText))

	res := b.Execute(context.Background(), receipt.New(receipt.Body("x")), printerConfig("POS58"))

	assert.True(t, res.Success)
	assert.Len(t, ch.sends, 1)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "sending anyway")
}

func TestEscposSerializesSameDevice(t *testing.T) {
	ch := &fakeChannel{alive: true, sendDelay: time.Millisecond}
	b := NewEscpos(ch, channel.NewKeyedMutex(), logging.Discard())
	cfg := printerConfig("POS58")

	docs := make([]receipt.Document, 6)
	for i := range docs {
		docs[i] = receipt.New(receipt.Header(fmt.Sprintf("JOB %d", i)), receipt.Body(fmt.Sprintf("line for job %d", i)))
	}

	var wg sync.WaitGroup
	for _, doc := range docs {
		wg.Add(1)
		go func(doc receipt.Document) {
			defer wg.Done()
			assert.True(t, b.Execute(context.Background(), doc, cfg).Success)
		}(doc)
	}
	wg.Wait()

	assert.Equal(t, 1, ch.maxInFlight)
	require.Len(t, ch.sends, len(docs))

	// every delivered stream is exactly one job's bytes, never a mix
	expected := map[string]bool{}
	for _, doc := range docs {
		expected[string(escpos.Encode(doc, cfg).Bytes())] = true
	}
	for _, sent := range ch.sends {
		assert.True(t, expected[string(sent)])
	}
}

func TestEscposDifferentDevicesRunConcurrently(t *testing.T) {
	ch := &fakeChannel{alive: true, sendDelay: 2 * time.Millisecond}
	b := NewEscpos(ch, channel.NewKeyedMutex(), logging.Discard())

	var wg sync.WaitGroup
	for _, device := range []string{"POS58", "KITCHEN", "BAR"} {
		wg.Add(1)
		go func(device string) {
			defer wg.Done()
			b.Execute(context.Background(), receipt.New(receipt.Body("x")), printerConfig(device))
		}(device)
	}
	wg.Wait()

	assert.Len(t, ch.sends, 3)
}

func TestEscposSendRaw(t *testing.T) {
	ch := &fakeChannel{alive: true}
	b := NewEscpos(ch, nil, logging.Discard())

	res := b.SendRaw(context.Background(), []byte{0x1B, 0x40, 'A'}, printerConfig("POS58"))
	assert.True(t, res.Success)
	assert.Equal(t, [][]byte{{0x1B, 0x40, 'A'}}, ch.sends)
}

type panickingChannel struct{ fakeChannel }

func (p *panickingChannel) Send(ctx context.Context, h *channel.Handle, j escpos.Job, timeout time.Duration) error {
	panic("driver bug")
}

func TestEscposRecoversPanics(t *testing.T) {
	b := NewEscpos(&panickingChannel{fakeChannel{alive: true}}, nil, logging.Discard())

	res := b.Execute(context.Background(), receipt.New(), printerConfig("POS58"))
	assert.Equal(t, job.TransportError, res.ErrorKind)
	assert.Contains(t, res.Detail, "driver bug")
}

// stallingAdapter models a transport that stops responding: Write or
// Close hold the adapter lock until release is closed, the way lp or a
// USB printer out of paper would.
type stallingAdapter struct {
	mu         sync.Mutex
	open       bool
	stallWrite bool
	release    chan struct{}
}

func (a *stallingAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	return nil
}

func (a *stallingAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stallWrite {
		<-a.release
	}
	return len(data), nil
}

func (a *stallingAdapter) Read(buf []byte) (int, error) { return 0, nil }

func (a *stallingAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		<-a.release
	}
	a.open = false
	return nil
}

func (a *stallingAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func TestEscposTimeoutBoundsStalledTransport(t *testing.T) {
	testCases := []struct {
		name       string
		stallWrite bool
	}{
		{"StalledClose", false},
		{"StalledWrite", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			release := make(chan struct{})
			t.Cleanup(func() { close(release) })

			open := func(name string, timeout time.Duration) (adapter.Adapter, error) {
				return &stallingAdapter{stallWrite: tc.stallWrite, release: release}, nil
			}
			b := NewEscpos(channel.NewDeviceWithOpener(open, logging.Discard()), channel.NewKeyedMutex(), logging.Discard())

			cfg := printerConfig("POS58")
			cfg.ConnectTimeoutMs = 200

			// the second job must not queue behind the stalled first one
			for i := 0; i < 2; i++ {
				start := time.Now()
				res := b.Execute(context.Background(), receipt.New(receipt.Body("x")), cfg)
				elapsed := time.Since(start)

				assert.False(t, res.Success)
				assert.Equal(t, job.SendTimeout, res.ErrorKind)
				assert.Less(t, elapsed, 2*time.Second)
			}
		})
	}
}
