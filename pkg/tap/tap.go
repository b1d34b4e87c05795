// Package tap models the IEEE 1149.1 TAP controller so drivers can derive
// the TMS patterns for register scans without talking to hardware.
package tap

import (
	"fmt"
)

// State is one of the 16 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// next[s][0] is reached with TMS=0, next[s][1] with TMS=1.
var next = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state after one TCK with the given TMS. It panics on
// a state outside the diagram.
func NextState(current State, tms bool) State {
	if current >= numStates {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return next[current][1]
	}
	return next[current][0]
}

// Sequence is a TMS pattern together with the states it visits, starting
// with the state before the first clock.
type Sequence struct {
	TMS    []bool
	States []State
}

// StateMachine tracks the TAP state on the host side.
type StateMachine struct {
	state State
}

// NewStateMachine starts in Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the tracked state.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances one TCK.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Reset clocks five TMS=1 cycles, which reaches Test-Logic-Reset from any
// state.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{TMS: make([]bool, 5), States: []State{m.state}}
	for i := range seq.TMS {
		seq.TMS[i] = true
		seq.States = append(seq.States, m.Clock(true))
	}
	return seq
}

// GoTo moves to target along the shortest path and returns the pattern used.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	seq, err := shortestPath(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range seq.TMS {
		m.Clock(bit)
	}
	return seq, nil
}

// ScanPlan is the TMS pattern of a complete register scan. Clocks
// [First, First+Bits) are the data clocks: TDI is shifted in and TDO is
// sampled on them.
type ScanPlan struct {
	TMS   []bool
	First int
	Bits  int
}

// Scan plans a scan of bits through shift (StateShiftIR or StateShiftDR):
// enter the shift state, clock the payload leaving on its last bit, and
// return to Run-Test/Idle through the matching Update state. The machine
// ends in Run-Test/Idle.
func (m *StateMachine) Scan(shift State, bits int) (ScanPlan, error) {
	if shift != StateShiftIR && shift != StateShiftDR {
		return ScanPlan{}, fmt.Errorf("tap: %s is not a shift state", shift)
	}
	if bits <= 0 {
		return ScanPlan{}, fmt.Errorf("tap: scan needs at least one bit, got %d", bits)
	}
	enter, err := m.GoTo(shift)
	if err != nil {
		return ScanPlan{}, err
	}
	plan := ScanPlan{TMS: append([]bool(nil), enter.TMS...), First: len(enter.TMS), Bits: bits}
	for i := 0; i < bits; i++ {
		last := i == bits-1
		plan.TMS = append(plan.TMS, last)
		m.Clock(last)
	}
	leave, err := m.GoTo(StateRunTestIdle)
	if err != nil {
		return ScanPlan{}, err
	}
	plan.TMS = append(plan.TMS, leave.TMS...)
	return plan, nil
}

type step struct {
	prev State
	tms  bool
}

// shortestPath runs a breadth-first search over the state diagram.
func shortestPath(from, to State) (Sequence, error) {
	if from >= numStates {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if to >= numStates {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	var seen [numStates]bool
	var via [numStates]step
	seen[from] = true
	queue := []State{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, tms := range []bool{false, true} {
			n := NextState(cur, tms)
			if seen[n] {
				continue
			}
			seen[n] = true
			via[n] = step{prev: cur, tms: tms}
			if n == to {
				return unwind(from, to, via[:]), nil
			}
			queue = append(queue, n)
		}
	}
	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

func unwind(from, to State, via []step) Sequence {
	var tms []bool
	states := []State{to}
	for s := to; s != from; s = via[s].prev {
		tms = append(tms, via[s].tms)
		states = append(states, via[s].prev)
	}
	for i, j := 0, len(tms)-1; i < j; i, j = i+1, j-1 {
		tms[i], tms[j] = tms[j], tms[i]
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return Sequence{TMS: tms, States: states}
}
