package crd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/signalsfoundry/slr-reduction/model"
)

const (
	secondsPerDay = 86400.0
	halfDay       = secondsPerDay / 2
)

// Format is the H1 record.
type Format struct {
	Version  int
	Produced time.Time
}

// Station is the H2 record. ID is the 8-digit CDP pad/system/occupancy
// identifier used by SINEX.
type Station struct {
	Name      string
	Pad       int
	System    int
	Occupancy int
	TimeScale int
	ID        string
}

// Target is the H3 record.
type Target struct {
	Name   string
	ILRSID string
	SIC    string
	NORAD  string
}

// Session is the H4 record.
type Session struct {
	DataType int // 0 full rate, 1 normal point, 2 sampled engineering
	Start    time.Time
	End      time.Time
	Header   model.SessionHeader
}

// DataBlock is one H4..H8 block. Times of day on Meteo and Ranges are
// already adjusted for midnight roll-over and can exceed 86400.
type DataBlock struct {
	StartLine int
	EndLine   int

	Format  Format
	Station Station
	Target  Target
	Session Session

	Configs  []model.ConfigSample
	Meteo    []model.MeteoSample
	Ranges   []model.RangeSample
	Warnings []Warning
}

// Records flattens the block into the tracking record stream.
func (b DataBlock) Records() []model.TrackingRecord {
	out := make([]model.TrackingRecord, 0, 1+len(b.Configs)+len(b.Meteo)+len(b.Ranges))
	out = append(out, b.Session.Header)
	for _, c := range b.Configs {
		out = append(out, c)
	}
	for _, m := range b.Meteo {
		out = append(out, m)
	}
	for _, r := range b.Ranges {
		out = append(out, r)
	}
	return out
}

// File is a parsed CRD file.
type File struct {
	Blocks []DataBlock
}

// Warnings collects the warnings of every block.
func (f *File) Warnings() []Warning {
	var out []Warning
	for _, b := range f.Blocks {
		out = append(out, b.Warnings...)
	}
	return out
}

// RangeCount is the number of range records across all blocks.
func (f *File) RangeCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Ranges)
	}
	return n
}

// Parser decomposes a CRD file into data blocks. The zero value accepts
// full-rate and normal-point range records.
type Parser struct {
	RangeTags []string
}

func (p Parser) rangeTags() map[string]bool {
	tags := p.RangeTags
	if len(tags) == 0 {
		tags = []string{"10", "11"}
	}
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[strings.ToUpper(t)] = true
	}
	return m
}

// dayClock unwraps seconds of day across midnight within one block.
type dayClock struct {
	last   float64
	offset float64
}

func (c *dayClock) adjust(tod float64) float64 {
	if tod+c.offset < c.last-halfDay {
		c.offset += secondsPerDay
	}
	adj := tod + c.offset
	if adj > c.last {
		c.last = adj
	}
	return adj
}

// Parse reads a whole CRD stream. H1, H2 and H3 carry over to later
// blocks until replaced. Unsupported record types are skipped; H9 ends
// the file.
func (p Parser) Parse(r io.Reader) (*File, error) {
	accepted := p.rangeTags()

	var (
		file    File
		format  Format
		station Station
		target  Target
		block   *DataBlock
		clock   dayClock
		lineNo  int
		sawH4   bool
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
scan:
	for sc.Scan() {
		lineNo++
		rec := tokenize(sc.Text(), lineNo)
		tag := rec.tag()

		var err error
		switch {
		case tag == "":
			continue
		case tag == "H1":
			format, err = decodeFormat(rec)
			if block != nil {
				block.Format = format
			}
		case tag == "H2":
			station, err = decodeStation(rec)
			if block != nil {
				block.Station = station
			}
		case tag == "H3":
			target, err = decodeTarget(rec)
			if block != nil {
				block.Target = target
			}
		case tag == "H4":
			if block != nil {
				return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: H4 before H8 of block at line %d", ErrUnterminatedBlock, block.StartLine)}
			}
			sawH4 = true
			var sess Session
			if sess, err = decodeSession(rec); err == nil {
				block = &DataBlock{StartLine: lineNo, Format: format, Station: station, Target: target, Session: sess}
				clock = dayClock{last: secondsOfDay(sess.Start)}
			}
		case tag == "H8":
			if block == nil {
				return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: H8 without H4", ErrRecordOutsideBlock)}
			}
			block.EndLine = lineNo
			file.Blocks = append(file.Blocks, *block)
			block = nil
		case tag == "H9":
			break scan
		case tag == "C0":
			if block == nil {
				return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: %s", ErrRecordOutsideBlock, tag)}
			}
			var c model.ConfigSample
			if c, err = decodeConfig(rec); err == nil {
				block.Configs = append(block.Configs, c)
			}
		case tag == "20":
			if block == nil {
				return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: %s", ErrRecordOutsideBlock, tag)}
			}
			var m model.MeteoSample
			if m, err = decodeMeteo(rec); err == nil {
				m.TimeOfDay = clock.adjust(m.TimeOfDay)
				block.Meteo = append(block.Meteo, m)
			}
		case accepted[tag]:
			if block == nil {
				return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: %s", ErrRecordOutsideBlock, tag)}
			}
			s, warn, derr := decodeRange(rec)
			if err = derr; err == nil {
				s.TimeOfDay = clock.adjust(s.TimeOfDay)
				block.Ranges = append(block.Ranges, s)
				if warn != nil {
					block.Warnings = append(block.Warnings, *warn)
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("crd: read: %w", err)
	}
	if block != nil {
		return nil, &BlockError{LineNo: lineNo, Err: fmt.Errorf("%w: block at line %d", ErrUnterminatedBlock, block.StartLine)}
	}
	if !sawH4 {
		return nil, fmt.Errorf("crd: %w", ErrHeaderNotFound)
	}
	return &file, nil
}

func secondsOfDay(t time.Time) float64 {
	h, m, s := t.Clock()
	return float64(h*3600+m*60+s) + float64(t.Nanosecond())/1e9
}

func decodeFormat(rec record) (Format, error) {
	// H1 CRD <version> <yyyy> <mm> <dd> <hh>
	v, err := rec.int("format_version", 2)
	if err != nil {
		return Format{}, err
	}
	f := Format{Version: v}
	if len(rec.tokens) >= 7 {
		d, err := rec.ints(3, "production_year", "production_month", "production_day", "production_hour")
		if err != nil {
			return Format{}, err
		}
		f.Produced = time.Date(d[0], time.Month(d[1]), d[2], d[3], 0, 0, 0, time.UTC)
	}
	return f, nil
}

func decodeStation(rec record) (Station, error) {
	name, err := rec.text("station_name", 1)
	if err != nil {
		return Station{}, err
	}
	ids, err := rec.ints(2, "pad_id", "system_number", "occupancy")
	if err != nil {
		return Station{}, err
	}
	st := Station{
		Name:      name,
		Pad:       ids[0],
		System:    ids[1],
		Occupancy: ids[2],
		ID:        fmt.Sprintf("%04d%02d%02d", ids[0], ids[1], ids[2]),
	}
	if len(rec.tokens) > 5 {
		if st.TimeScale, err = rec.int("time_scale", 5); err != nil {
			return Station{}, err
		}
	}
	return st, nil
}

func decodeTarget(rec record) (Target, error) {
	var t Target
	for i, dst := range []*string{&t.Name, &t.ILRSID, &t.SIC, &t.NORAD} {
		s, err := rec.text([]string{"target_name", "ilrs_id", "sic", "norad"}[i], i+1)
		if err != nil {
			return Target{}, err
		}
		*dst = s
	}
	return t, nil
}

func decodeSession(rec record) (Session, error) {
	dt, err := rec.int("data_type", 1)
	if err != nil {
		return Session{}, err
	}
	d, err := rec.ints(2, "start_year", "start_month", "start_day", "start_hour", "start_minute", "start_second")
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		DataType: dt,
		Start:    time.Date(d[0], time.Month(d[1]), d[2], d[3], d[4], d[5], 0, time.UTC),
		Header:   model.SessionHeader{Year: d[0], Month: d[1], Day: d[2]},
	}
	if len(rec.tokens) >= 14 {
		e, err := rec.ints(8, "end_year", "end_month", "end_day", "end_hour", "end_minute", "end_second")
		if err != nil {
			return Session{}, err
		}
		sess.End = time.Date(e[0], time.Month(e[1]), e[2], e[3], e[4], e[5], 0, time.UTC)
	}
	return sess, nil
}

func decodeConfig(rec record) (model.ConfigSample, error) {
	wl, err := rec.float("wavelength", 2)
	if err != nil {
		return model.ConfigSample{}, err
	}
	id, err := rec.text("system_config_id", 3)
	if err != nil {
		return model.ConfigSample{}, err
	}
	return model.ConfigSample{SystemConfigID: id, WavelengthNM: wl}, nil
}

func decodeMeteo(rec record) (model.MeteoSample, error) {
	var v [4]float64
	for i, name := range []string{"time_of_day", "pressure", "temperature", "humidity"} {
		f, err := rec.float(name, i+1)
		if err != nil {
			return model.MeteoSample{}, err
		}
		v[i] = f
	}
	return model.MeteoSample{TimeOfDay: v[0], Pressure: v[1], Temperature: v[2], Humidity: v[3]}, nil
}
