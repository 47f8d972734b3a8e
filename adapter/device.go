package adapter

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ForDevice resolves a configured device name to an unopened adapter.
//
//	usb, usb:auto        first USB printer-class device
//	usb:VVVV:PPPP        USB vendor and product id, hex
//	usb:serial:XXXX      USB device with the given serial number
//	tcp://host:port      raw TCP, also socket://host:port
//	/dev/usb/lp0         raw device node (any absolute path)
//	printer:NAME, NAME   CUPS queue
//
// USB lookups touch the bus and may block; callers bound them.
func ForDevice(name string, timeout time.Duration) (Adapter, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, fmt.Errorf("empty device name")
	case name == "usb" || strings.HasPrefix(name, "usb:"):
		return forUSB(strings.TrimPrefix(strings.TrimPrefix(name, "usb"), ":"))
	case strings.HasPrefix(name, "tcp://"):
		return NewNetAdapter(withPort(strings.TrimPrefix(name, "tcp://")), timeout), nil
	case strings.HasPrefix(name, "socket://"):
		return NewNetAdapter(withPort(strings.TrimPrefix(name, "socket://")), timeout), nil
	case filepath.IsAbs(name):
		return NewFileAdapter(name), nil
	default:
		return NewCUPSAdapter(strings.TrimPrefix(name, "printer:")), nil
	}
}

// IsQueueName reports whether name resolves to a CUPS queue.
func IsQueueName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "usb" || filepath.IsAbs(name) {
		return false
	}
	for _, prefix := range []string{"usb:", "tcp://", "socket://"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// QueueName strips the printer: prefix from a CUPS queue name.
func QueueName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "printer:")
}

func forUSB(target string) (Adapter, error) {
	if target == "" || target == "auto" {
		return NewUSBAdapterAuto()
	}
	if serial, ok := strings.CutPrefix(target, "serial:"); ok {
		return NewUSBAdapterBySerial(serial)
	}

	vid, pid, ok := strings.Cut(target, ":")
	if !ok {
		return nil, fmt.Errorf("invalid usb device %q, want usb:VVVV:PPPP", target)
	}
	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid usb vendor id %q: %w", vid, err)
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid usb product id %q: %w", pid, err)
	}
	return NewUSBAdapter(uint16(v), uint16(p))
}

func withPort(address string) string {
	if strings.Contains(address, ":") {
		return address
	}
	return address + ":9100"
}
