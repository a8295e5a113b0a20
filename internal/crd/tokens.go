package crd

import (
	"errors"
	"strconv"
	"strings"

	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
)

var errMissingField = errors.New("missing field")

// token is one whitespace separated field with its byte range on the line.
type token struct {
	text  string
	start int
	end   int
}

// record is a tokenised CRD line.
type record struct {
	lineNo int
	line   string
	tokens []token
}

func tokenize(line string, lineNo int) record {
	rec := record{lineNo: lineNo, line: line}
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		if i > start {
			rec.tokens = append(rec.tokens, token{text: line[start:i], start: start, end: i})
		}
	}
	return rec
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

// tag is the upper-cased record type, "" for a blank line.
func (r record) tag() string {
	if len(r.tokens) == 0 {
		return ""
	}
	return strings.ToUpper(r.tokens[0].text)
}

func (r record) fieldError(name string, idx int, err error) error {
	start, end := len(r.line), len(r.line)
	if idx < len(r.tokens) {
		start, end = r.tokens[idx].start, r.tokens[idx].end
	}
	return &fixedcol.FieldParseError{LineNo: r.lineNo, Line: r.line, Field: name, Start: start, End: end, Err: err}
}

func (r record) text(name string, idx int) (string, error) {
	if idx >= len(r.tokens) {
		return "", r.fieldError(name, idx, errMissingField)
	}
	return r.tokens[idx].text, nil
}

func (r record) float(name string, idx int) (float64, error) {
	s, err := r.text(name, idx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, r.fieldError(name, idx, err)
	}
	return v, nil
}

func (r record) int(name string, idx int) (int, error) {
	s, err := r.text(name, idx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, r.fieldError(name, idx, err)
	}
	return v, nil
}

// ints decodes consecutive integer tokens starting at idx.
func (r record) ints(idx int, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := r.int(name, idx+i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
