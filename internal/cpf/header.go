// Package cpf writes and reads ILRS Consolidated Prediction Format files.
package cpf

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("cpf: invalid header")

// ValidationError names the header field that violates the format.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cpf: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Header holds the H1 and H2 fields of a prediction file.
type Header struct {
	Version  int    // 1 or 2
	Source   string // ephemeris source, exactly 3 characters
	Produced time.Time
	Sequence int // v1: [5000, 10000); v2: day of year [0, 366]
	SubDaily int // v2 only: [0, 99]
	Target   string

	COSPAR string
	SIC    string
	NORAD  string

	Start time.Time
	End   time.Time
	Step  time.Duration // whole seconds

	// TargetType is the H2 target class; zero is written as 1 (passive
	// retro-reflector).
	TargetType int
}

// Validate checks every constraint the fixed-column layout depends on.
func (h Header) Validate() error {
	switch h.Version {
	case 1:
		if h.Sequence < 5000 || h.Sequence >= 10000 {
			return &ValidationError{Field: "sequence", Value: h.Sequence, Reason: "version 1 requires [5000, 10000)"}
		}
	case 2:
		if h.Sequence < 0 || h.Sequence > 366 {
			return &ValidationError{Field: "sequence", Value: h.Sequence, Reason: "version 2 requires [0, 366]"}
		}
		if h.SubDaily < 0 || h.SubDaily > 99 {
			return &ValidationError{Field: "sub_daily", Value: h.SubDaily, Reason: "version 2 requires [0, 99]"}
		}
	default:
		return &ValidationError{Field: "version", Value: h.Version, Reason: "must be 1 or 2"}
	}

	if len(h.Source) != 3 {
		return &ValidationError{Field: "source", Value: fmt.Sprintf("%q", h.Source), Reason: "must be exactly 3 characters"}
	}
	if len(h.Target) == 0 || len(h.Target) > 10 {
		return &ValidationError{Field: "target", Value: fmt.Sprintf("%q", h.Target), Reason: "must be 1 to 10 characters"}
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{{"cospar", h.COSPAR, 8}, {"sic", h.SIC, 4}, {"norad", h.NORAD, 8}} {
		if len(f.value) > f.max {
			return &ValidationError{Field: f.name, Value: fmt.Sprintf("%q", f.value), Reason: fmt.Sprintf("longer than %d characters", f.max)}
		}
	}

	if h.Produced.IsZero() {
		return &ValidationError{Field: "produced", Value: h.Produced, Reason: "must be set"}
	}
	if h.Start.IsZero() || h.End.Before(h.Start) {
		return &ValidationError{Field: "span", Value: fmt.Sprintf("%s..%s", h.Start.Format(time.RFC3339), h.End.Format(time.RFC3339)), Reason: "end must not precede start"}
	}
	if h.Step <= 0 || h.Step%time.Second != 0 || h.Step > 99999*time.Second {
		return &ValidationError{Field: "step", Value: h.Step, Reason: "must be whole seconds in [1, 99999]"}
	}
	return nil
}

func (h Header) targetType() int {
	if h.TargetType == 0 {
		return 1
	}
	return h.TargetType
}
