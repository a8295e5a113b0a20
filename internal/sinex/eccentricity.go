package sinex

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

const BlockSiteEccentricity = "SITE/ECCENTRICITY"

var eccentricitySchema = fixedcol.MustSchema(BlockSiteEccentricity,
	fixedcol.Field{Name: "code", Start: 1, End: 5, Kind: fixedcol.Int},
	fixedcol.Field{Name: "pt", Start: 7, End: 8, Kind: fixedcol.Char},
	fixedcol.Field{Name: "soln", Start: 9, End: 13, Kind: fixedcol.Text},
	fixedcol.Field{Name: "obs_code", Start: 14, End: 15, Kind: fixedcol.Text},
	fixedcol.Field{Name: "start", Start: 16, End: 28, Kind: fixedcol.Text},
	fixedcol.Field{Name: "end", Start: 29, End: 41, Kind: fixedcol.Text},
	fixedcol.Field{Name: "ref", Start: 42, End: 45, Kind: fixedcol.Text},
	fixedcol.Field{Name: "d1", Start: 46, End: 54, Kind: fixedcol.Float},
	fixedcol.Field{Name: "d2", Start: 55, End: 63, Kind: fixedcol.Float},
	fixedcol.Field{Name: "d3", Start: 64, End: 72, Kind: fixedcol.Float},
	fixedcol.Field{Name: "station_id", Start: 80, End: 88, Kind: fixedcol.Text},
)

// EccentricityTable holds eccentricity windows per CDP-SOD station id,
// ordered by start of validity.
type EccentricityTable struct {
	byStation map[string][]model.EccentricityRecord
}

// Lookup returns the record whose validity window contains epoch. When
// windows overlap the one that started last wins.
func (t *EccentricityTable) Lookup(stationID string, epoch time.Time) (model.EccentricityRecord, bool) {
	if t == nil {
		return model.EccentricityRecord{}, false
	}
	recs := t.byStation[stationID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Contains(epoch) {
			return recs[i], true
		}
	}
	return model.EccentricityRecord{}, false
}

// records returns every window of a station.
func (t *EccentricityTable) records(stationID string) []model.EccentricityRecord {
	if t == nil {
		return nil
	}
	return append([]model.EccentricityRecord(nil), t.byStation[stationID]...)
}

// Stations returns the station ids present in the table, sorted.
func (t *EccentricityTable) Stations() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.byStation))
	for id := range t.byStation {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of records in the table.
func (t *EccentricityTable) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, recs := range t.byStation {
		n += len(recs)
	}
	return n
}

// ParseEccentricities reads the SITE/ECCENTRICITY block from r.
func ParseEccentricities(r io.Reader) (*EccentricityTable, error) {
	table := &EccentricityTable{byStation: make(map[string][]model.EccentricityRecord)}
	err := scanSections(r, section{name: BlockSiteEccentricity, required: true, row: func(line string, lineNo int) error {
		rec, err := decodeEccentricity(line, lineNo)
		if err != nil {
			return err
		}
		table.byStation[rec.StationID] = append(table.byStation[rec.StationID], rec)
		return nil
	}})
	if err != nil {
		return nil, err
	}
	for id := range table.byStation {
		recs := table.byStation[id]
		slices.SortStableFunc(recs, func(a, b model.EccentricityRecord) int {
			return a.ValidFrom.Compare(b.ValidFrom)
		})
	}
	return table, nil
}

func decodeEccentricity(line string, lineNo int) (model.EccentricityRecord, error) {
	row, err := eccentricitySchema.Decode(line, lineNo)
	if err != nil {
		return model.EccentricityRecord{}, err
	}
	fieldErr := func(name string, err error) error {
		for _, f := range eccentricitySchema.Fields() {
			if f.Name == name {
				return &fixedcol.FieldParseError{LineNo: lineNo, Line: line, Field: name, Start: f.Start, End: f.End, Err: err}
			}
		}
		return err
	}

	id := row.Text("station_id")
	if id == "" {
		return model.EccentricityRecord{}, fieldErr("station_id", errors.New("missing CDP-SOD station id"))
	}
	from, err := windowEpoch(row.Raw("start"))
	if err != nil {
		return model.EccentricityRecord{}, fieldErr("start", err)
	}
	to, err := windowEpoch(row.Raw("end"))
	if err != nil {
		return model.EccentricityRecord{}, fieldErr("end", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return model.EccentricityRecord{}, fieldErr("end", fmt.Errorf("window ends %s before it starts %s", to, from))
	}

	rec := model.EccentricityRecord{
		StationID: id,
		Key:       model.StationKey{Code: row.Int("code"), PlacementTag: row.Char("pt")},
		Solution:  row.Text("soln"),
		ValidFrom: from,
		ValidTo:   to,
	}
	d1, d2, d3 := row.Float("d1"), row.Float("d2"), row.Float("d3")
	switch ref := strings.ToUpper(row.Text("ref")); ref {
	case "XYZ":
		rec.Frame = model.FrameXYZ
		rec.Offset = r3.Vec{X: d1, Y: d2, Z: d3}
	case "UNE":
		rec.Frame = model.FrameENU
		rec.Offset = r3.Vec{X: d3, Y: d2, Z: d1}
	case "ENU":
		rec.Frame = model.FrameENU
		rec.Offset = r3.Vec{X: d1, Y: d2, Z: d3}
	default:
		return model.EccentricityRecord{}, fieldErr("ref", fmt.Errorf("unknown reference system %q", ref))
	}
	return rec, nil
}

// windowEpoch decodes a validity limit; the all-zero placeholder means
// unbounded and yields the zero time.
func windowEpoch(s string) (time.Time, error) {
	if timectrl.IsOpenEpoch(s) {
		return time.Time{}, nil
	}
	return timectrl.DecodeEpoch(s)
}
