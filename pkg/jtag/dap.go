package jtag

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command bytes used by the JTAG adapter.
const (
	dapInfo          = 0x00
	dapConnect       = 0x02
	dapDisconnect    = 0x03
	dapResetTarget   = 0x0A
	dapSWJClock      = 0x11
	dapJTAGSequence  = 0x14
	dapJTAGConfigure = 0x15
)

// DAP_Info identifiers.
const (
	infoVendor   = 0x01
	infoProduct  = 0x02
	infoSerial   = 0x03
	infoFirmware = 0x04
)

const (
	dapPortJTAG = 2
	dapStatusOK = 0x00

	seqClockMask = 0x3F // 0 encodes 64 clocks
	seqTMS       = 0x40
	seqCapture   = 0x80
	seqMaxClocks = 64
)

// dapSequence is one DAP_JTAG_Sequence entry: up to 64 clocks with a
// constant TMS level.
type dapSequence struct {
	info byte
	tdi  []byte
}

func newDAPSequence(clocks int, tms, capture bool, tdi []byte) dapSequence {
	info := byte(clocks & seqClockMask)
	if tms {
		info |= seqTMS
	}
	if capture {
		info |= seqCapture
	}
	return dapSequence{info: info, tdi: tdi}
}

func (s dapSequence) clocks() int {
	if n := int(s.info & seqClockMask); n != 0 {
		return n
	}
	return seqMaxClocks
}

func (s dapSequence) capture() bool { return s.info&seqCapture != 0 }

// splitSequences cuts a per-clock TMS/TDI stream into sequences at every TMS
// change and every 64 clocks. A nil tms holds TMS low throughout.
func splitSequences(tms, tdi []byte, bits int) []dapSequence {
	var out []dapSequence
	for pos := 0; pos < bits; {
		level := bitAt(tms, pos)
		n := 1
		for pos+n < bits && n < seqMaxClocks && bitAt(tms, pos+n) == level {
			n++
		}
		chunk := make([]byte, (n+7)/8)
		for i := 0; i < n; i++ {
			if bitAt(tdi, pos+i) {
				chunk[i/8] |= 1 << (uint(i) % 8)
			}
		}
		out = append(out, newDAPSequence(n, level, true, chunk))
		pos += n
	}
	return out
}

// batchSequences groups sequences so each request and its response fit in
// one packet of size bytes.
func batchSequences(seqs []dapSequence, size int) [][]dapSequence {
	var batches [][]dapSequence
	var cur []dapSequence
	req, resp := 2, 2
	for _, s := range seqs {
		r, p := 1+len(s.tdi), len(s.tdi)
		if len(cur) > 0 && (req+r > size || resp+p > size || len(cur) == 255) {
			batches = append(batches, cur)
			cur, req, resp = nil, 2, 2
		}
		cur = append(cur, s)
		req += r
		resp += p
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func encodeSequences(seqs []dapSequence) []byte {
	cmd := []byte{dapJTAGSequence, byte(len(seqs))}
	for _, s := range seqs {
		cmd = append(cmd, s.info)
		cmd = append(cmd, s.tdi...)
	}
	return cmd
}

// decodeSequences appends the captured TDO bits of seqs to tdo starting at
// stream position pos and returns the new position.
func decodeSequences(resp []byte, seqs []dapSequence, tdo []byte, pos int) (int, error) {
	if err := checkStatus(resp, dapJTAGSequence); err != nil {
		return pos, err
	}
	off := 2
	for _, s := range seqs {
		if !s.capture() {
			pos += s.clocks()
			continue
		}
		if off+len(s.tdi) > len(resp) {
			return pos, fmt.Errorf("jtag: cmsis-dap: truncated TDO data")
		}
		data := resp[off : off+len(s.tdi)]
		for i := 0; i < s.clocks(); i++ {
			if bitAt(data, i) && (pos+i)/8 < len(tdo) {
				tdo[(pos+i)/8] |= 1 << (uint(pos+i) % 8)
			}
		}
		off += len(s.tdi)
		pos += s.clocks()
	}
	return pos, nil
}

func encodeClock(hz uint32) []byte {
	cmd := []byte{dapSWJClock, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func encodeConfigure(irLengths []byte) []byte {
	return append([]byte{dapJTAGConfigure, byte(len(irLengths))}, irLengths...)
}

func decodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 || resp[0] != dapInfo {
		return "", fmt.Errorf("jtag: cmsis-dap: malformed DAP_Info response")
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return "", fmt.Errorf("jtag: cmsis-dap: DAP_Info string truncated")
	}
	// Strings are NUL terminated on most firmware.
	s := resp[2 : 2+n]
	for i, c := range s {
		if c == 0 {
			s = s[:i]
			break
		}
	}
	return string(s), nil
}

// checkStatus validates the echo byte and status byte of a response.
func checkStatus(resp []byte, cmd byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("jtag: cmsis-dap: response to 0x%02X too short", cmd)
	}
	if resp[0] != cmd {
		return fmt.Errorf("jtag: cmsis-dap: response id 0x%02X, want 0x%02X", resp[0], cmd)
	}
	if resp[1] != dapStatusOK {
		return &StatusError{Op: fmt.Sprintf("cmsis-dap command 0x%02X", cmd), Status: int(resp[1])}
	}
	return nil
}

func bitAt(buf []byte, i int) bool {
	if i/8 >= len(buf) {
		return false
	}
	return buf[i/8]&(1<<(uint(i)%8)) != 0
}
