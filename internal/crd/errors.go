package crd

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedEpochEvent marks a range record whose epoch-event code
	// is neither 1 (bounce) nor 2 (transmit). It is reported as a Warning;
	// the record is kept but no timing can be derived for it.
	ErrUnrecognizedEpochEvent = errors.New("unrecognized epoch event")

	// ErrHeaderNotFound is returned when no session header (H4) precedes
	// the range data.
	ErrHeaderNotFound = errors.New("session header not found")

	// ErrUnterminatedBlock is returned when a data block is not closed by
	// H8 before the next H4 or the end of input.
	ErrUnterminatedBlock = errors.New("unterminated data block")

	// ErrRecordOutsideBlock is returned for a data record that appears
	// before any H4 or after an H8.
	ErrRecordOutsideBlock = errors.New("record outside data block")
)

// Warning is a recoverable problem attached to a parse result.
type Warning struct {
	LineNo int
	Line   string
	Err    error
}

func (w Warning) Error() string {
	return fmt.Sprintf("line %d: %v: %q", w.LineNo, w.Err, w.Line)
}

func (w Warning) Unwrap() error { return w.Err }

// BlockError places a structural error on the line that exposed it.
type BlockError struct {
	LineNo int
	Err    error
}

func (e *BlockError) Error() string {
	if e.LineNo <= 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("line %d: %v", e.LineNo, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }
