// Package report routes scan diagnostics by severity.
package report

import (
	"fmt"
	"log"
	"strings"
)

// Severity selects what happens to a reported condition.
type Severity int

const (
	// Silent drops the condition.
	Silent Severity = iota
	// Warning logs the message and continues.
	Warning
	// NonFatal logs the message with its stack, counts it and continues.
	NonFatal
	// Fatal hands the error back to the caller.
	Fatal
)

var severityNames = [...]string{"silent", "warning", "nonfatal", "fatal"}

func (s Severity) String() string {
	if s >= Silent && s <= Fatal {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity accepts the names printed by String, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, n := range severityNames {
		if n == want {
			return Severity(i), nil
		}
	}
	return Silent, fmt.Errorf("report: unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if s < Silent || s > Fatal {
		return nil, fmt.Errorf("report: invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Severities configures one shift: how to treat a bad IR scan-out, a shift
// with nothing to compare, and an expected/actual mismatch.
type Severities struct {
	IRBad   Severity `json:"ir_bad"`
	NoTest  Severity `json:"no_test"`
	ErrTest Severity `json:"err_test"`
}

// DefaultSeverities returns the bring-up defaults.
func DefaultSeverities() Severities {
	return Severities{IRBad: Fatal, NoTest: Warning, ErrTest: Fatal}
}

// Reporter applies severities. A nil *Reporter treats every condition as
// Fatal.
type Reporter struct {
	logger   *log.Logger
	nonFatal int
}

// NewReporter logs through logger, or log.Default() when nil.
func NewReporter(logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{logger: logger}
}

// Report handles err at sev and returns it only when sev is Fatal.
func (r *Reporter) Report(sev Severity, err error) error {
	if err == nil {
		return nil
	}
	if r == nil {
		return err
	}
	switch sev {
	case Silent:
		return nil
	case Warning:
		r.logger.Printf("warning: %v", err)
		return nil
	case NonFatal:
		r.nonFatal++
		r.logger.Printf("error: %+v", err)
		return nil
	default:
		return err
	}
}

// NonFatalCount returns how many NonFatal conditions have been reported.
func (r *Reporter) NonFatalCount() int {
	if r == nil {
		return 0
	}
	return r.nonFatal
}
