// Package fixedcol decodes column-positional text records through an
// explicit schema of named byte ranges.
package fixedcol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind selects how a field's bytes are decoded.
type Kind int

const (
	Text Kind = iota
	Char
	Int
	Float
)

// Field is one named byte range [Start, End) of a record.
type Field struct {
	Name  string
	Start int
	End   int
	Kind  Kind
	// Blank allows a numeric field to be all spaces; it then decodes as 0
	// and Row.Present reports false.
	Blank bool
}

// Schema is a validated set of non-overlapping fields.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
}

// ErrInvalidSchema is returned by NewSchema.
var ErrInvalidSchema = errors.New("invalid column schema")

// NewSchema validates fields and returns a schema. Fields must have unique
// names, a non-empty range, and must not overlap.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	s := &Schema{name: name, fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w %s: field %d has no name", ErrInvalidSchema, name, i)
		}
		if f.Start < 0 || f.End <= f.Start {
			return nil, fmt.Errorf("%w %s: field %s has range [%d,%d)", ErrInvalidSchema, name, f.Name, f.Start, f.End)
		}
		if f.Kind == Char && f.End-f.Start != 1 {
			return nil, fmt.Errorf("%w %s: char field %s must be one byte wide", ErrInvalidSchema, name, f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w %s: duplicate field %s", ErrInvalidSchema, name, f.Name)
		}
		for _, g := range fields[:i] {
			if f.Start < g.End && g.Start < f.End {
				return nil, fmt.Errorf("%w %s: fields %s and %s overlap", ErrInvalidSchema, name, g.Name, f.Name)
			}
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for package-level tables; it panics on error.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Fields returns a copy of the schema's fields.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Decode extracts every field of line. lineNo is only used for error
// context. Text fields tolerate lines shorter than the field; numeric and
// char fields do not.
func (s *Schema) Decode(line string, lineNo int) (Row, error) {
	row := Row{schema: s, values: make([]value, len(s.fields))}
	for i, f := range s.fields {
		raw, ok := slice(line, f.Start, f.End)
		v := value{raw: raw}
		switch f.Kind {
		case Text:
			v.present = strings.TrimSpace(raw) != ""
		case Char:
			if !ok {
				return Row{}, fieldErr(lineNo, line, f, errors.New("line too short"))
			}
			v.present = raw != " "
		case Int, Float:
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" {
				if !f.Blank {
					return Row{}, fieldErr(lineNo, line, f, errors.New("empty numeric field"))
				}
				break
			}
			var err error
			if f.Kind == Int {
				var n int
				n, err = strconv.Atoi(trimmed)
				v.num = float64(n)
				v.integer = n
			} else {
				v.num, err = strconv.ParseFloat(trimmed, 64)
			}
			if err != nil {
				return Row{}, fieldErr(lineNo, line, f, err)
			}
			v.present = true
		}
		row.values[i] = v
	}
	return row, nil
}

func slice(line string, start, end int) (string, bool) {
	if start >= len(line) {
		return "", false
	}
	if end > len(line) {
		return line[start:], false
	}
	return line[start:end], true
}

func fieldErr(lineNo int, line string, f Field, err error) *FieldParseError {
	return &FieldParseError{LineNo: lineNo, Line: line, Field: f.Name, Start: f.Start, End: f.End, Err: err}
}

type value struct {
	raw     string
	num     float64
	integer int
	present bool
}

// Row is a decoded record. Accessors panic on names the schema does not
// define, which is a programming error.
type Row struct {
	schema *Schema
	values []value
}

func (r Row) get(name string) value {
	i, ok := r.schema.index[name]
	if !ok {
		panic(fmt.Sprintf("fixedcol: schema %s has no field %q", r.schema.name, name))
	}
	return r.values[i]
}

// Text returns the trimmed text of a field.
func (r Row) Text(name string) string { return strings.TrimSpace(r.get(name).raw) }

// Raw returns the untrimmed bytes of a field.
func (r Row) Raw(name string) string { return r.get(name).raw }

// Char returns the single byte of a char field, or 0 when it is missing.
func (r Row) Char(name string) byte {
	raw := r.get(name).raw
	if raw == "" {
		return 0
	}
	return raw[0]
}

// Int returns an integer field.
func (r Row) Int(name string) int { return r.get(name).integer }

// Float returns a numeric field.
func (r Row) Float(name string) float64 { return r.get(name).num }

// Present reports whether a field held non-blank content.
func (r Row) Present(name string) bool { return r.get(name).present }
