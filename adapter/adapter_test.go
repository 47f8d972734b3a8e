package adapter

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	assert.NoError(t, ParseStatus(0x12))
	assert.ErrorIs(t, ParseStatus(0x1A), ErrOffline)
	assert.Error(t, ParseStatus(0xFF))
	assert.Error(t, ParseStatus(0x00))
}

func TestForDevice(t *testing.T) {
	testCases := []struct {
		name string
		want any
	}{
		{"tcp://10.0.0.5:9100", &NetAdapter{}},
		{"socket://10.0.0.5", &NetAdapter{}},
		{"/dev/usb/lp0", &FileAdapter{}},
		{"printer:POS58", &CUPSAdapter{}},
		{"POS58", &CUPSAdapter{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ForDevice(tc.name, time.Second)
			require.NoError(t, err)
			assert.IsType(t, tc.want, a)
		})
	}

	a, _ := ForDevice("socket://10.0.0.5", time.Second)
	assert.Equal(t, "10.0.0.5:9100", a.(*NetAdapter).address)

	a, _ = ForDevice("printer:POS58", time.Second)
	assert.Equal(t, "POS58", a.(*CUPSAdapter).queue)
}

func TestForDeviceErrors(t *testing.T) {
	_, err := ForDevice("  ", time.Second)
	assert.Error(t, err)

	_, err = ForDevice("usb:zz:0001", time.Second)
	assert.ErrorContains(t, err, "vendor")

	_, err = ForDevice("usb:04b8", time.Second)
	assert.ErrorContains(t, err, "usb:VVVV:PPPP")
}

func TestIsQueueName(t *testing.T) {
	assert.True(t, IsQueueName("POS58"))
	assert.True(t, IsQueueName("printer:POS58"))
	assert.False(t, IsQueueName(""))
	assert.False(t, IsQueueName("usb"))
	assert.False(t, IsQueueName("usb:04b8:0202"))
	assert.False(t, IsQueueName("tcp://host:9100"))
	assert.False(t, IsQueueName("/dev/usb/lp0"))
	assert.Equal(t, "POS58", QueueName("printer:POS58"))
}

func TestNetAdapter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// answer the status request, then collect the payload
		buf := make([]byte, 3)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write([]byte{0x12})
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	a := NewNetAdapter(ln.Addr().String(), time.Second)
	_, err = a.Write([]byte("x"))
	assert.ErrorIs(t, err, errNotOpen)

	require.NoError(t, a.Open())
	assert.True(t, a.IsOpen())
	assert.ErrorIs(t, a.Open(), errAlreadyOpen)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Probe(ctx))

	n, err := a.Write([]byte("Hello, Printer!"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())
	assert.NoError(t, a.Close())

	select {
	case data := <-received:
		assert.Equal(t, []byte("Hello, Printer!"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("printer did not receive data")
	}
}

func TestNetAdapterProbeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	a := NewNetAdapter(ln.Addr().String(), 100*time.Millisecond)
	require.NoError(t, a.Open())
	defer a.Close()

	assert.Error(t, a.Probe(context.Background()))
}

func TestNetAdapterDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	a := NewNetAdapter(addr, 200*time.Millisecond)
	assert.ErrorContains(t, a.Open(), "connection failed")
}

func TestFileAdapter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lp0")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	a := NewFileAdapter(path)
	require.NoError(t, a.Open())
	require.NoError(t, a.Probe(context.Background()))

	_, err := a.Write([]byte{0x1B, 0x40})
	require.NoError(t, err)
	_, err = a.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errNoInput)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x40}, data)
}

func TestFileAdapterMissingDevice(t *testing.T) {
	a := NewFileAdapter(filepath.Join(t.TempDir(), "missing", "lp0"))
	assert.Error(t, a.Open())
	assert.False(t, a.IsOpen())
}

func withLP(t *testing.T, script string) {
	t.Helper()
	orig := lpCommand
	lpCommand = func(queue string) *exec.Cmd {
		return exec.Command("sh", "-c", script, "lp", queue)
	}
	t.Cleanup(func() { lpCommand = orig })
}

func TestCUPSAdapter(t *testing.T) {
	out := filepath.Join(t.TempDir(), "job.bin")
	withLP(t, "cat > "+out)

	a := NewCUPSAdapter("POS58")
	require.NoError(t, a.Open())
	assert.True(t, a.IsOpen())

	_, err := a.Write([]byte("receipt"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "receipt", string(data))
}

func TestCUPSAdapterRejected(t *testing.T) {
	withLP(t, `cat >/dev/null; echo "lp: The printer or class does not exist." >&2; exit 1`)

	a := NewCUPSAdapter("missing")
	require.NoError(t, a.Open())
	_, _ = a.Write([]byte("receipt"))

	err := a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCUPSAdapterProbe(t *testing.T) {
	orig := lpstatCommand
	t.Cleanup(func() { lpstatCommand = orig })

	lpstatCommand = func(ctx context.Context, queue string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `echo "printer POS58 is idle.  enabled since Mon"`)
	}
	assert.NoError(t, NewCUPSAdapter("POS58").Probe(context.Background()))

	lpstatCommand = func(ctx context.Context, queue string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `echo "printer POS58 disabled since Mon"`)
	}
	assert.Error(t, NewCUPSAdapter("POS58").Probe(context.Background()))
}

func TestCUPSAdapterCloseDoesNotBlockIsOpen(t *testing.T) {
	withLP(t, "cat >/dev/null; sleep 2")

	a := NewCUPSAdapter("POS58")
	require.NoError(t, a.Open())
	_, err := a.Write([]byte("receipt"))
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- a.Close() }()

	// wait until the close has started
	require.Eventually(t, func() bool { return !a.IsOpen() }, time.Second, 5*time.Millisecond)

	start := time.Now()
	assert.NoError(t, a.Close())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lp did not finish")
	}
}
