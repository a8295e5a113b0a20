package cpf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

// ReadSamples parses the position records (10) of a prediction and keeps
// those whose epoch lies in [from, to]. A zero bound is open. Reading
// stops at the first non-position line after the table starts.
func ReadSamples(r io.Reader, from, to time.Time) ([]model.EphemerisSample, error) {
	var (
		out     []model.EphemerisSample
		inTable bool
		lineNo  int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if !strings.HasPrefix(line, "10") {
			if inTable {
				break
			}
			continue
		}
		inTable = true

		s, err := decodePosition(line, lineNo)
		if err != nil {
			return nil, err
		}
		if (!from.IsZero() && s.Epoch.Before(from)) || (!to.IsZero() && s.Epoch.After(to)) {
			continue
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cpf: read: %w", err)
	}
	return out, nil
}

// decodePosition reads "10 dir mjd sod leap x y z".
func decodePosition(line string, lineNo int) (model.EphemerisSample, error) {
	names := [...]string{"record", "direction", "mjd", "second_of_day", "leap_second", "x", "y", "z"}
	spans := fieldSpans(line)
	if len(spans) < len(names) {
		return model.EphemerisSample{}, &fixedcol.FieldParseError{
			LineNo: lineNo, Line: line, Field: names[len(spans)], Start: len(line), End: len(line),
			Err: fmt.Errorf("want %d fields, got %d", len(names), len(spans)),
		}
	}

	var v [len(names)]float64
	for i := 2; i < len(names); i++ {
		sp := spans[i]
		f, err := strconv.ParseFloat(line[sp[0]:sp[1]], 64)
		if err == nil && i == 2 && f != float64(int(f)) {
			err = fmt.Errorf("not an integer day")
		}
		if err != nil {
			return model.EphemerisSample{}, &fixedcol.FieldParseError{LineNo: lineNo, Line: line, Field: names[i], Start: sp[0], End: sp[1], Err: err}
		}
		v[i] = f
	}
	return model.EphemerisSample{
		Epoch:    timectrl.FromMJD(int(v[2]), v[3]),
		Position: r3.Vec{X: v[5], Y: v[6], Z: v[7]},
	}, nil
}

// fieldSpans returns the [start, end) byte range of each blank separated
// field.
func fieldSpans(line string) [][2]int {
	var out [][2]int
	start := -1
	for i := 0; i <= len(line); i++ {
		blank := i == len(line) || line[i] == ' ' || line[i] == '\t'
		switch {
		case blank && start >= 0:
			out = append(out, [2]int{start, i})
			start = -1
		case !blank && start < 0:
			start = i
		}
	}
	return out
}
