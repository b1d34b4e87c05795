package jtag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Raspberry Pi debug probe identifiers.
const (
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C
)

// usbLink is a packetLink over the bulk endpoints of a CMSIS-DAP v2
// vendor interface.
type usbLink struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	size int
}

func openUSBLink(vid, pid uint16) (*usbLink, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, &StatusError{Op: "usb open", Status: 1, Err: err}
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("jtag: no USB device %04X:%04X", vid, pid)
	}
	// Unsupported on some platforms.
	_ = dev.SetAutoDetach(true)

	l := &usbLink{ctx: ctx, dev: dev, size: 64}
	if err := l.claim(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return l, nil
}

func (l *usbLink) claim() error {
	cfgNum, err := l.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("jtag: usb active config: %w", err)
	}
	cfg, err := l.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("jtag: usb config %d: %w", cfgNum, err)
	}
	num := 0
	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) > 0 && desc.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = desc.Number
			break
		}
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("jtag: claim interface %d: %w", num, err)
	}
	l.done = func() {
		intf.Close()
		cfg.Close()
	}

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			l.size = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		l.done()
		return errors.New("jtag: CMSIS-DAP bulk endpoints not found")
	}
	if l.out, err = intf.OutEndpoint(outNum); err != nil {
		l.done()
		return fmt.Errorf("jtag: open OUT endpoint: %w", err)
	}
	if l.in, err = intf.InEndpoint(inNum); err != nil {
		l.done()
		return fmt.Errorf("jtag: open IN endpoint: %w", err)
	}
	return nil
}

func (l *usbLink) PacketSize() int { return l.size }

func (l *usbLink) Exchange(cmd []byte) ([]byte, error) {
	packet := make([]byte, l.size)
	copy(packet, cmd)
	if _, err := l.out.Write(packet); err != nil {
		return nil, &StatusError{Op: "usb write", Status: 1, Err: err}
	}
	resp := make([]byte, l.size)
	n, err := l.in.Read(resp)
	if err != nil {
		return nil, &StatusError{Op: "usb read", Status: 1, Err: err}
	}
	return resp[:n], nil
}

func (l *usbLink) Close() error {
	if l.done != nil {
		l.done()
		l.done = nil
	}
	var err error
	if l.dev != nil {
		err = l.dev.Close()
		l.dev = nil
	}
	if l.ctx != nil {
		l.ctx.Close()
		l.ctx = nil
	}
	return err
}

// InterfaceKind names an adapter family.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes one adapter the host can open.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
}

// Label returns a human readable name.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

type knownProbe struct {
	vid, pid uint16
	name     string
}

var knownProbes = []knownProbe{
	{VendorIDRaspberryPi, ProductIDCMSISDAP, "Raspberry Pi Debug Probe"},
	{0x0D28, 0x0204, "DAPLink CMSIS-DAP"},
	{0x1366, 0x0101, "SEGGER J-Link CMSIS-DAP"},
}

// ClassifyUSB reports whether vid:pid is a known CMSIS-DAP probe.
func ClassifyUSB(vid, pid uint16) (InterfaceInfo, bool) {
	for _, k := range knownProbes {
		if k.vid == vid && k.pid == pid {
			return InterfaceInfo{Kind: InterfaceKindCMSISDAP, Description: k.name, VendorID: vid, ProductID: pid}, true
		}
	}
	return InterfaceInfo{}, false
}

// DiscoverInterfaces lists attached probes followed by the chip simulator,
// which is always available. Devices are only inspected, never opened.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var found []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		if info, ok := ClassifyUSB(uint16(desc.Vendor), uint16(desc.Product)); ok {
			found = append(found, info)
		}
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return found, fmt.Errorf("jtag: usb enumeration: %w", err)
	}
	found = append(found, InterfaceInfo{Kind: InterfaceKindSim, Description: "Chip simulator (no hardware)"})
	return found, ctx.Err()
}
