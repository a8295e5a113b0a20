package fixedcol

import "fmt"

// FieldParseError locates an undecodable field. Start and End are 0-based
// byte offsets, End exclusive.
type FieldParseError struct {
	LineNo int
	Line   string
	Field  string
	Start  int
	End    int
	Err    error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("line %d: field %s [%d,%d): %v: %q", e.LineNo, e.Field, e.Start, e.End, e.Err, e.Line)
}

func (e *FieldParseError) Unwrap() error { return e.Err }
