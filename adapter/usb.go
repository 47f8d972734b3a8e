package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/gousb"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassPrinter = 0x07
)

// USBAdapter talks to a USB printer-class device through its bulk endpoints.
type USBAdapter struct {
	device      *gousb.Device
	ctx         *gousb.Context
	config      *gousb.Config
	iface       *gousb.Interface
	outEndpoint *gousb.OutEndpoint
	inEndpoint  *gousb.InEndpoint
	isOpen      bool
	mu          sync.Mutex
}

// NewUSBAdapter opens the device with the given vendor and product id.
func NewUSBAdapter(vid, pid uint16) (*USBAdapter, error) {
	ctx := gousb.NewContext()
	device, err := GetDeviceByVIDPID(ctx, vid, pid)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb %04x:%04x: %w", vid, pid, err)
	}
	return &USBAdapter{ctx: ctx, device: device}, nil
}

// NewUSBAdapterBySerial opens the device with the given serial number.
func NewUSBAdapterBySerial(serial string) (*USBAdapter, error) {
	ctx := gousb.NewContext()
	device, err := GetDeviceBySerial(ctx, serial)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	return &USBAdapter{ctx: ctx, device: device}, nil
}

// NewUSBAdapterAuto creates adapter with auto-detection
func NewUSBAdapterAuto() (*USBAdapter, error) {
	ctx := gousb.NewContext()

	devices := FindPrinters(ctx)
	if len(devices) == 0 {
		ctx.Close()
		return nil, errors.New("cannot find printer")
	}
	for _, extra := range devices[1:] {
		extra.Close()
	}

	return &USBAdapter{ctx: ctx, device: devices[0]}, nil
}

// IsPrinter checks if a device is a printer
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfg, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	cfgDesc, err := dev.Config(cfg)
	if err != nil {
		return false
	}
	defer cfgDesc.Close()

	for _, iface := range cfgDesc.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return true
			}
		}
	}

	return false
}

// FindPrinters returns all USB printer devices
func FindPrinters(ctx *gousb.Context) []*gousb.Device {
	var printers []*gousb.Device

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true // Check all devices
	})
	if err != nil {
		slog.Debug("usb enumeration incomplete", "error", err)
	}

	for _, dev := range devices {
		if IsPrinter(dev) {
			slog.Debug("found usb printer", "vendor", dev.Desc.Vendor.String(), "product", dev.Desc.Product.String())
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}

	return printers
}

// GetDeviceByVIDPID opens a device by VID and PID
func GetDeviceByVIDPID(ctx *gousb.Context, vid, pid uint16) (*gousb.Device, error) {
	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, errors.New("device not found")
	}
	return device, nil
}

// GetDeviceBySerial opens a device by serial number
func GetDeviceBySerial(ctx *gousb.Context, serial string) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil {
			if s, err := dev.SerialNumber(); err == nil && s == serial {
				found = dev
				continue
			}
		}
		dev.Close()
	}

	if found == nil {
		return nil, errors.New("device with serial number not found")
	}
	return found, nil
}

// Open claims the printer interface and its bulk endpoints.
func (a *USBAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return errAlreadyOpen
	}

	if a.device == nil {
		return errors.New("device not found")
	}

	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		a.device.SetAutoDetach(true)
	}

	cfgNum, err := a.device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := a.device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	printerIfaceNum := -1
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				printerIfaceNum = iface.Number
				break
			}
		}
		if printerIfaceNum >= 0 {
			break
		}
	}

	if printerIfaceNum < 0 {
		cfg.Close()
		return errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(printerIfaceNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut && a.outEndpoint == nil {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				a.outEndpoint = ep
			}
		}
		if epDesc.Direction == gousb.EndpointDirectionIn && a.inEndpoint == nil {
			if ep, err := iface.InEndpoint(epDesc.Number); err == nil {
				a.inEndpoint = ep
			}
		}
	}

	if a.outEndpoint == nil {
		iface.Close()
		cfg.Close()
		return errors.New("cannot find output endpoint from printer")
	}

	a.config = cfg
	a.iface = iface
	a.isOpen = true
	return nil
}

// Write sends data to the printer
func (a *USBAdapter) Write(data []byte) (int, error) {
	return a.WriteContext(context.Background(), data)
}

// WriteContext sends data and gives up when ctx is done. The transfer runs
// without the adapter lock so that Close and IsOpen are never stuck behind
// a printer that stopped accepting data.
func (a *USBAdapter) WriteContext(ctx context.Context, data []byte) (int, error) {
	a.mu.Lock()
	if !a.isOpen {
		a.mu.Unlock()
		return 0, errNotOpen
	}
	ep := a.outEndpoint
	a.mu.Unlock()

	n, err := ep.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}

	return n, nil
}

// Read reads data from the printer
func (a *USBAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, errNotOpen
	}

	if a.inEndpoint == nil {
		return 0, errNoInput
	}

	n, err := a.inEndpoint.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read failed: %w", err)
	}

	return n, nil
}

// Probe sends DLE EOT 1 and checks the reply. Printers without an input
// endpoint cannot answer and are assumed online while the device is open.
func (a *USBAdapter) Probe(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return errNotOpen
	}
	if a.inEndpoint == nil {
		return nil
	}

	if _, err := a.outEndpoint.WriteContext(ctx, escpos.StatusRequest); err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	size := a.inEndpoint.Desc.MaxPacketSize
	if size < 1 {
		size = 64
	}
	buf := make([]byte, size)
	n, err := a.inEndpoint.ReadContext(ctx, buf)
	if err != nil {
		return fmt.Errorf("status read failed: %w", err)
	}
	if n == 0 {
		return errors.New("empty status reply")
	}
	return ParseStatus(buf[0])
}

// Close releases the interface, the device and the USB context.
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.iface != nil {
		a.iface.Close()
		a.iface = nil
	}
	if a.config != nil {
		if err := a.config.Close(); err != nil {
			errs = append(errs, err)
		}
		a.config = nil
	}
	a.outEndpoint = nil
	a.inEndpoint = nil

	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, err)
		}
		a.device = nil
	}

	if a.ctx != nil {
		if err := a.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
		a.ctx = nil
	}

	a.isOpen = false

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}

	return nil
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}
