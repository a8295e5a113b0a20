package crd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/slr-reduction/model"
)

// LegacyParser reads the range data of a single-pass CRD payload the way
// archive downloads are traditionally consumed: locate the session
// header, then take the first run of consecutive range records.
type LegacyParser struct {
	// HeaderTag opens the session. Matched case-insensitively.
	HeaderTag string
	// RangeTags are the accepted range record types.
	RangeTags []string
}

// NewLegacyParser returns a parser keyed on H4 with full-rate (10) and
// normal-point (11) records accepted.
func NewLegacyParser() LegacyParser {
	return LegacyParser{HeaderTag: "H4", RangeTags: []string{"10", "11"}}
}

// LegacyResult is the output of LegacyParser.Parse.
type LegacyResult struct {
	Header   model.SessionHeader
	Ranges   []model.RangeSample
	Warnings []Warning
}

// Records returns the header followed by the range samples.
func (r LegacyResult) Records() []model.TrackingRecord {
	out := make([]model.TrackingRecord, 0, len(r.Ranges)+1)
	out = append(out, r.Header)
	for _, s := range r.Ranges {
		out = append(out, s)
	}
	return out
}

type legacyState int

const (
	legacySeekHeader legacyState = iota
	legacySeekRange
	legacyInRange
	legacyDone
)

// Parse scans r once. Records after the first non-range line are ignored.
func (p LegacyParser) Parse(r io.Reader) (LegacyResult, error) {
	header := strings.ToUpper(p.HeaderTag)
	if header == "" {
		return LegacyResult{}, fmt.Errorf("crd: legacy parser has no header tag")
	}
	accepted := make(map[string]bool, len(p.RangeTags))
	for _, t := range p.RangeTags {
		accepted[strings.ToUpper(t)] = true
	}

	var (
		res    LegacyResult
		state  = legacySeekHeader
		lineNo int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for state != legacyDone && sc.Scan() {
		lineNo++
		rec := tokenize(sc.Text(), lineNo)
		tag := rec.tag()

		switch state {
		case legacySeekHeader:
			if tag != header {
				continue
			}
			h, err := decodeSessionDate(rec)
			if err != nil {
				return LegacyResult{}, err
			}
			res.Header = h
			state = legacySeekRange
		case legacySeekRange, legacyInRange:
			if !accepted[tag] {
				if state == legacyInRange {
					state = legacyDone
				}
				continue
			}
			s, warn, err := decodeRange(rec)
			if err != nil {
				return LegacyResult{}, err
			}
			if warn != nil {
				res.Warnings = append(res.Warnings, *warn)
			}
			res.Ranges = append(res.Ranges, s)
			state = legacyInRange
		}
	}
	if err := sc.Err(); err != nil {
		return LegacyResult{}, fmt.Errorf("crd: read: %w", err)
	}
	if state == legacySeekHeader {
		return LegacyResult{}, fmt.Errorf("crd: %w (%s)", ErrHeaderNotFound, header)
	}
	return res, nil
}

// ParseLines is Parse over an already split payload, as returned by the
// archive API.
func (p LegacyParser) ParseLines(lines []string) (LegacyResult, error) {
	return p.Parse(strings.NewReader(strings.Join(lines, "\n")))
}
