// Package sinex parses the SINEX blocks needed to build a station catalog:
// SITE/ID, SOLUTION/ESTIMATE and SITE/ECCENTRICITY.
package sinex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSectionNotFound is returned when a required start or end marker never
// appears before the end of the stream.
var ErrSectionNotFound = errors.New("sinex section not found")

// SectionError names the marker that was missing.
type SectionError struct {
	Marker string // e.g. "+SITE/ID" or "-SITE/ID"
	LineNo int    // last line read
	Reason string
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("sinex: marker %s not found (line %d): %s", e.Marker, e.LineNo, e.Reason)
}

func (e *SectionError) Unwrap() error { return ErrSectionNotFound }

// scanState is the state of the section scanner.
type scanState int

const (
	stateSeeking    scanState = iota // between blocks
	stateSkipHeader                  // after +NAME, before the first data row
	stateInSection                   // reading rows of a wanted block
	stateForeign                     // inside a block nobody asked for
	stateDone                        // %ENDSNX seen
)

// section binds a block name to a row handler.
type section struct {
	name     string
	required bool
	row      func(line string, lineNo int) error
}

const maxLine = 1 << 20

// scanSections walks r once and feeds data rows of the requested blocks to
// their handlers. Comment lines (starting with '*') are skipped. A block
// that opens but never closes, or a required block that never opens, is
// ErrSectionNotFound.
func scanSections(r io.Reader, sections ...section) error {
	wanted := make(map[string]section, len(sections))
	for _, s := range sections {
		wanted[s.name] = s
	}
	seen := make(map[string]bool, len(sections))

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	state := stateSeeking
	current := ""
	lineNo := 0

	for state != stateDone && sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if strings.HasPrefix(line, "%ENDSNX") {
			if state == stateSeeking {
				state = stateDone
				break
			}
			return &SectionError{Marker: "-" + current, LineNo: lineNo, Reason: "end of file marker inside block"}
		}

		switch state {
		case stateSeeking:
			if !strings.HasPrefix(line, "+") {
				continue
			}
			current = blockName(line)
			if _, ok := wanted[current]; ok {
				seen[current] = true
				state = stateSkipHeader
			} else {
				state = stateForeign
			}

		case stateSkipHeader, stateInSection, stateForeign:
			if strings.HasPrefix(line, "-") {
				if blockName(line) != current {
					return &SectionError{Marker: "-" + current, LineNo: lineNo, Reason: fmt.Sprintf("found %s instead", strings.TrimSpace(line))}
				}
				state = stateSeeking
				continue
			}
			if strings.HasPrefix(line, "+") {
				return &SectionError{Marker: "-" + current, LineNo: lineNo, Reason: fmt.Sprintf("block %s opened first", blockName(line))}
			}
			if state == stateForeign || strings.HasPrefix(line, "*") || strings.TrimSpace(line) == "" {
				continue
			}
			state = stateInSection
			if err := wanted[current].row(line, lineNo); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sinex: read line %d: %w", lineNo+1, err)
	}

	switch state {
	case stateSkipHeader, stateInSection, stateForeign:
		return &SectionError{Marker: "-" + current, LineNo: lineNo, Reason: "stream ended inside block"}
	}
	for _, s := range sections {
		if s.required && !seen[s.name] {
			return &SectionError{Marker: "+" + s.name, LineNo: lineNo, Reason: "required block missing"}
		}
	}
	return nil
}

func blockName(line string) string {
	f := strings.Fields(line[1:])
	if len(f) == 0 {
		return ""
	}
	return f[0]
}
