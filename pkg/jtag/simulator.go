package jtag

import "fmt"

// ShiftRegion tells whether an adapter transfer was issued for an IR or a DR
// scan.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

// ShiftHook computes TDO for a simulated transfer.
type ShiftHook func(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error)

// ShiftOp records one adapter transfer.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// SimAdapter is an in-memory Adapter for tests. Without a hook it loops TDI
// back to TDO.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook

	history   []ShiftOp
	resets    int
	hardReset int
}

// NewSimAdapter returns a loopback adapter reporting info.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info}
}

// LastShift returns the latest transfer, or the zero ShiftOp if none.
func (s *SimAdapter) LastShift() ShiftOp {
	if len(s.history) == 0 {
		return ShiftOp{}
	}
	return s.history[len(s.history)-1]
}

// History returns every transfer in order.
func (s *SimAdapter) History() []ShiftOp {
	return append([]ShiftOp(nil), s.history...)
}

// ResetCounts reports total and hard TAP resets.
func (s *SimAdapter) ResetCounts() (soft, hard int) {
	return s.resets, s.hardReset
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.transfer(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.transfer(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.resets++
	if hard {
		s.hardReset++
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.SpeedHz = hz
	return nil
}

func (s *SimAdapter) transfer(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	need, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	s.history = append(s.history, ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	})
	if s.OnShift != nil {
		return s.OnShift(region, tms, tdi, bits)
	}
	tdo := make([]byte, need)
	copy(tdo, tdi)
	return tdo, nil
}
