package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUSBAdapterAuto(t *testing.T) {
	adapter, err := NewUSBAdapterAuto()
	if err != nil {
		t.Skip("No USB printer found, skipping test")
	}
	defer adapter.Close()

	assert.NotNil(t, adapter.ctx)
	assert.NotNil(t, adapter.device)
}

func TestNewUSBAdapter(t *testing.T) {
	testCases := []struct {
		name string
		vid  uint16
		pid  uint16
	}{
		{"Epson", 0x04b8, 0x0202},
		{"Star", 0x0519, 0x0001},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			adapter, err := NewUSBAdapter(tc.vid, tc.pid)
			if err != nil {
				t.Skip("USB printer not found, skipping test")
			}
			defer adapter.Close()

			assert.NotNil(t, adapter.device)
		})
	}
}

func TestFindPrinters(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	printers := FindPrinters(ctx)
	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	for _, printer := range printers {
		assert.True(t, IsPrinter(printer))
		printer.Close()
	}
}

func TestIsPrinterNil(t *testing.T) {
	assert.False(t, IsPrinter(nil))
}

func TestUSBAdapterOpenClose(t *testing.T) {
	adapter, err := NewUSBAdapterAuto()
	if err != nil {
		t.Skip("No USB printer found, skipping test")
	}
	defer adapter.Close()

	assert.False(t, adapter.IsOpen())

	_, err = adapter.Write([]byte("test"))
	assert.ErrorIs(t, err, errNotOpen)

	require.NoError(t, adapter.Open())
	assert.True(t, adapter.IsOpen())

	err = adapter.Open()
	assert.ErrorIs(t, err, errAlreadyOpen)

	n, err := adapter.Write([]byte{0x1B, 0x40})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// many printers answer nothing; only check it returns
	_ = adapter.Probe(ctx)

	require.NoError(t, adapter.Close())
	assert.False(t, adapter.IsOpen())
	assert.NoError(t, adapter.Close())
}

func TestGetDeviceByVIDPID(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err := GetDeviceByVIDPID(ctx, 0xFFFF, 0xFFFF)
	assert.Error(t, err)
}

func TestGetDeviceBySerial(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err := GetDeviceBySerial(ctx, "INVALID_SERIAL_NUMBER")
	assert.Error(t, err)
}
