package jtag

import (
	"fmt"
	"sync"
)

// packetLink exchanges one command packet for one response packet.
type packetLink interface {
	Exchange(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// CMSISDAPAdapter drives a CMSIS-DAP probe in JTAG mode.
type CMSISDAPAdapter struct {
	mu        sync.Mutex
	link      packetLink
	info      AdapterInfo
	speedHz   int
	connected bool
}

const defaultSpeedHz = 1_000_000

// NewCMSISDAPAdapter opens the probe vid:pid over USB. The lease is consumed
// even when opening fails, so a process opens hardware at most once.
func NewCMSISDAPAdapter(lease *HardwareLease, vid, pid uint16) (*CMSISDAPAdapter, error) {
	if err := lease.Claim(fmt.Sprintf("cmsis-dap %04X:%04X", vid, pid)); err != nil {
		return nil, err
	}
	link, err := openUSBLink(vid, pid)
	if err != nil {
		return nil, err
	}
	a, err := newCMSISDAPAdapter(link)
	if err != nil {
		link.Close()
		return nil, err
	}
	return a, nil
}

func newCMSISDAPAdapter(link packetLink) (*CMSISDAPAdapter, error) {
	a := &CMSISDAPAdapter{link: link}
	if err := a.queryInfo(); err != nil {
		return nil, fmt.Errorf("jtag: cmsis-dap: query info: %w", err)
	}
	if err := a.connect(); err != nil {
		return nil, err
	}
	if err := a.SetSpeed(defaultSpeedHz); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *CMSISDAPAdapter) queryInfo() error {
	fields := []struct {
		id  byte
		dst *string
	}{
		{infoVendor, &a.info.Vendor},
		{infoProduct, &a.info.Model},
		{infoSerial, &a.info.SerialNumber},
		{infoFirmware, &a.info.Firmware},
	}
	for _, f := range fields {
		resp, err := a.link.Exchange([]byte{dapInfo, f.id})
		if err != nil {
			return err
		}
		// Probes may leave optional strings out.
		if s, err := decodeInfo(resp); err == nil {
			*f.dst = s
		}
	}
	a.info.Name = "CMSIS-DAP"
	a.info.MinFrequency = 1_000
	a.info.MaxFrequency = 10_000_000
	a.info.SupportsSRST = true
	a.info.SupportsTRST = true
	return nil
}

func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.link.Exchange([]byte{dapConnect, dapPortJTAG})
	if err != nil {
		return fmt.Errorf("jtag: cmsis-dap: connect: %w", err)
	}
	if len(resp) < 2 || resp[0] != dapConnect || resp[1] != dapPortJTAG {
		return fmt.Errorf("jtag: cmsis-dap: probe refused JTAG port (% X)", resp)
	}
	a.connected = true
	return nil
}

func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

func (a *CMSISDAPAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

func (a *CMSISDAPAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

// shift sends the clock stream as DAP_JTAG_Sequence batches and reassembles
// TDO in stream order.
func (a *CMSISDAPAdapter) shift(tms, tdi []byte, bits int) ([]byte, error) {
	need, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	tdo := make([]byte, need)
	pos := 0
	for _, batch := range batchSequences(splitSequences(tms, tdi, bits), a.link.PacketSize()) {
		resp, err := a.link.Exchange(encodeSequences(batch))
		if err != nil {
			return nil, fmt.Errorf("jtag: cmsis-dap: sequence: %w", err)
		}
		if pos, err = decodeSequences(resp, batch, tdo, pos); err != nil {
			return nil, err
		}
	}
	return tdo, nil
}

// ResetTAP pulses the target reset when hard is set, otherwise clocks five
// TMS-high cycles.
func (a *CMSISDAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		resp, err := a.link.Exchange([]byte{dapResetTarget})
		if err != nil {
			return fmt.Errorf("jtag: cmsis-dap: reset target: %w", err)
		}
		return checkStatus(resp, dapResetTarget)
	}
	seq := []dapSequence{newDAPSequence(5, true, false, []byte{0})}
	resp, err := a.link.Exchange(encodeSequences(seq))
	if err != nil {
		return fmt.Errorf("jtag: cmsis-dap: TAP reset: %w", err)
	}
	return checkStatus(resp, dapJTAGSequence)
}

func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("jtag: cmsis-dap: %d Hz outside [%d, %d]", hz, a.info.MinFrequency, a.info.MaxFrequency)
	}
	resp, err := a.link.Exchange(encodeClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("jtag: cmsis-dap: set clock: %w", err)
	}
	if err := checkStatus(resp, dapSWJClock); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// Speed returns the last TCK frequency accepted by the probe.
func (a *CMSISDAPAdapter) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speedHz
}

// ConfigureChain tells the probe the IR length of every chip, nearest TDI
// first.
func (a *CMSISDAPAdapter) ConfigureChain(irLengths []int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lengths := make([]byte, len(irLengths))
	for i, n := range irLengths {
		if n <= 0 || n > 255 {
			return fmt.Errorf("jtag: cmsis-dap: chip %d has IR length %d", i, n)
		}
		lengths[i] = byte(n)
	}
	resp, err := a.link.Exchange(encodeConfigure(lengths))
	if err != nil {
		return fmt.Errorf("jtag: cmsis-dap: configure chain: %w", err)
	}
	return checkStatus(resp, dapJTAGConfigure)
}

func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		// Best effort; the link is torn down regardless.
		_, _ = a.link.Exchange([]byte{dapDisconnect})
		a.connected = false
	}
	return a.link.Close()
}
