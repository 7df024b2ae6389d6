package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// KnownVendorIDs are the USB vendor ids of the serial adapters the head ships
// with: Arduino, FTDI, Silicon Labs, WCH, Adafruit and Raspberry Pi.
var KnownVendorIDs = []string{"2341", "0403", "10C4", "1A86", "239A", "2E8A"}

// ErrNoDevice is returned when no matching serial device is attached.
var ErrNoDevice = errors.New("no matching serial device")

const defaultSerialReadTimeout = 20 * time.Millisecond

// PortRequester is the default DeviceRequester. It opens Path when set and
// otherwise picks the first USB serial port whose vendor id is in VendorIDs.
type PortRequester struct {
	Path        string
	Options     PortOptions
	VendorIDs   []string
	ReadTimeout time.Duration

	// ListPorts and OpenPort default to go.bug.st/serial.
	ListPorts func() ([]*enumerator.PortDetails, error)
	OpenPort  func(path string, mode *serial.Mode) (SerialPorter, error)
}

func openSerialPort(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// RequestDevice implements DeviceRequester.
func (r *PortRequester) RequestDevice(ctx context.Context) (SerialPorter, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path := r.Path
	if path == "" {
		found, err := r.findPort()
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	mode, err := r.Options.SerialMode()
	if err != nil {
		return nil, "", err
	}
	open := r.OpenPort
	if open == nil {
		open = openSerialPort
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}

	timeout := r.ReadTimeout
	if timeout <= 0 {
		timeout = defaultSerialReadTimeout
	}
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, "", fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}
	return port, path, nil
}

func (r *PortRequester) findPort() (string, error) {
	list := r.ListPorts
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	vids := r.VendorIDs
	if len(vids) == 0 {
		vids = KnownVendorIDs
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		for _, vid := range vids {
			if strings.EqualFold(p.VID, vid) {
				diagf("found %s (vid %s pid %s %s)", p.Name, p.VID, p.PID, p.Product)
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w among %d ports", ErrNoDevice, len(ports))
}
