package spectrograph

import (
	"errors"
	"fmt"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityWarn Severity = iota + 1
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "WARNING"
	case SeverityFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Error categories. Match with errors.Is.
var (
	// ErrConfig covers missing header keys, malformed rows, bin overflow
	// and non-increasing exposure times.
	ErrConfig = errors.New("spectrograph: configuration error")

	// ErrPhysics covers unsolvable SNR pairs and round-trip mismatches.
	ErrPhysics = errors.New("spectrograph: physical inconsistency")

	// ErrMonotonic is returned at end of load when any SNR(Texpose) curve decreased.
	ErrMonotonic = errors.New("spectrograph: SNR not monotonic in exposure time")

	// ErrRange is returned by queries outside the calibrated exposure-time grid
	// or wavelength-bin index range.
	ErrRange = errors.New("spectrograph: value outside calibrated range")

	// ErrNotFound is returned when an input file cannot be located.
	ErrNotFound = errors.New("spectrograph: file not found")
)

// Error is a two-line diagnostic: Msg1 says what failed, Msg2 says where
// or what to check.
type Error struct {
	Severity Severity
	Func     string
	Msg1     string
	Msg2     string
	Err      error

	// Count is the number of offending cells for aggregated errors
	// such as ErrMonotonic.
	Count int
}

func (e *Error) Error() string {
	if e.Msg2 == "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Msg1)
	}
	return fmt.Sprintf("%s: %s; %s", e.Func, e.Msg1, e.Msg2)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fatalf(kind error, fn, msg1, msg2 string) *Error {
	return &Error{Severity: SeverityFatal, Func: fn, Msg1: msg1, Msg2: msg2, Err: kind}
}
