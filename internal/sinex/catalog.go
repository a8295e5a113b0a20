package sinex

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

const (
	BlockSiteID           = "SITE/ID"
	BlockSolutionEstimate = "SOLUTION/ESTIMATE"
)

// ErrIncompleteSolution is returned when a station solution lacks one of
// its STAX/STAY/STAZ rows.
var ErrIncompleteSolution = errors.New("incomplete station solution")

// siteIDSchema maps the SITE/ID row. The CDP-SOD identifier trails the
// standard columns at bytes 80-88.
var siteIDSchema = fixedcol.MustSchema(BlockSiteID,
	fixedcol.Field{Name: "code", Start: 1, End: 5, Kind: fixedcol.Int},
	fixedcol.Field{Name: "pt", Start: 7, End: 8, Kind: fixedcol.Char},
	fixedcol.Field{Name: "domes", Start: 9, End: 18, Kind: fixedcol.Text},
	fixedcol.Field{Name: "technique", Start: 19, End: 20, Kind: fixedcol.Text},
	fixedcol.Field{Name: "description", Start: 21, End: 43, Kind: fixedcol.Text},
	fixedcol.Field{Name: "lon_deg", Start: 44, End: 47, Kind: fixedcol.Int, Blank: true},
	fixedcol.Field{Name: "lon_min", Start: 47, End: 50, Kind: fixedcol.Int, Blank: true},
	fixedcol.Field{Name: "lon_sec", Start: 50, End: 55, Kind: fixedcol.Float, Blank: true},
	fixedcol.Field{Name: "lat_deg", Start: 56, End: 59, Kind: fixedcol.Int, Blank: true},
	fixedcol.Field{Name: "lat_min", Start: 59, End: 62, Kind: fixedcol.Int, Blank: true},
	fixedcol.Field{Name: "lat_sec", Start: 62, End: 67, Kind: fixedcol.Float, Blank: true},
	fixedcol.Field{Name: "height", Start: 68, End: 75, Kind: fixedcol.Float, Blank: true},
	fixedcol.Field{Name: "station_id", Start: 80, End: 88, Kind: fixedcol.Text},
)

var estimateSchema = fixedcol.MustSchema(BlockSolutionEstimate,
	fixedcol.Field{Name: "index", Start: 1, End: 6, Kind: fixedcol.Int},
	fixedcol.Field{Name: "type", Start: 7, End: 11, Kind: fixedcol.Text},
	fixedcol.Field{Name: "code", Start: 14, End: 18, Kind: fixedcol.Int},
	fixedcol.Field{Name: "pt", Start: 20, End: 21, Kind: fixedcol.Char},
	fixedcol.Field{Name: "soln", Start: 22, End: 26, Kind: fixedcol.Int},
	fixedcol.Field{Name: "ref_epoch", Start: 27, End: 39, Kind: fixedcol.Text},
	fixedcol.Field{Name: "unit", Start: 40, End: 44, Kind: fixedcol.Text},
	fixedcol.Field{Name: "constraint", Start: 45, End: 46, Kind: fixedcol.Int},
	fixedcol.Field{Name: "value", Start: 47, End: 68, Kind: fixedcol.Float},
	fixedcol.Field{Name: "std_dev", Start: 69, End: 80, Kind: fixedcol.Float, Blank: true},
)

// Estimate is one decoded SOLUTION/ESTIMATE row.
type Estimate struct {
	Index          int
	Type           string
	Key            model.StationKey
	Solution       int
	ReferenceEpoch time.Time
	Unit           string
	Constraint     int
	Value          float64
	StdDev         float64
}

// Catalog is the parsed station network of one SINEX file.
type Catalog struct {
	Sites map[model.StationKey]model.SiteInfo
	// Entries holds the highest-numbered solution per station.
	Entries map[model.StationKey]model.StationCatalogEntry
	// Solutions holds every solution per station ordered by number.
	Solutions map[model.StationKey][]model.StationCatalogEntry
}

// Entry returns the current solution for key.
func (c *Catalog) Entry(key model.StationKey) (model.StationCatalogEntry, bool) {
	e, ok := c.Entries[key]
	return e, ok
}

// EntryByStationID returns the current solution for a CDP-SOD identifier.
func (c *Catalog) EntryByStationID(id string) (model.StationCatalogEntry, bool) {
	for _, e := range c.Entries {
		if e.StationID == id {
			return e, true
		}
	}
	return model.StationCatalogEntry{}, false
}

// Keys returns the catalog keys in code order.
func (c *Catalog) Keys() []model.StationKey {
	keys := make([]model.StationKey, 0, len(c.Entries))
	for k := range c.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Code != keys[j].Code {
			return keys[i].Code < keys[j].Code
		}
		return keys[i].PlacementTag < keys[j].PlacementTag
	})
	return keys
}

// ParseCatalog reads SITE/ID and SOLUTION/ESTIMATE from r. Both blocks
// are required; any malformed row fails the whole file.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	sites := make(map[model.StationKey]model.SiteInfo)
	var estimates []Estimate

	err := scanSections(r,
		section{name: BlockSiteID, required: true, row: func(line string, lineNo int) error {
			site, err := decodeSite(line, lineNo)
			if err != nil {
				return err
			}
			sites[site.Key] = site
			return nil
		}},
		section{name: BlockSolutionEstimate, required: true, row: func(line string, lineNo int) error {
			est, ok, err := decodeEstimate(line, lineNo)
			if err != nil {
				return err
			}
			if ok {
				estimates = append(estimates, est)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}

	solutions, err := pivot(estimates, sites)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		Sites:     sites,
		Entries:   make(map[model.StationKey]model.StationCatalogEntry, len(solutions)),
		Solutions: solutions,
	}
	for key, sols := range solutions {
		cat.Entries[key] = sols[len(sols)-1]
	}
	return cat, nil
}

func decodeSite(line string, lineNo int) (model.SiteInfo, error) {
	row, err := siteIDSchema.Decode(line, lineNo)
	if err != nil {
		return model.SiteInfo{}, err
	}
	site := model.SiteInfo{
		Key:         model.StationKey{Code: row.Int("code"), PlacementTag: row.Char("pt")},
		DOMES:       row.Text("domes"),
		Description: row.Text("description"),
		StationID:   row.Text("station_id"),
	}
	if tech := row.Text("technique"); tech != "" {
		site.Technique = tech[0]
	}
	if row.Present("lon_deg") && row.Present("lat_deg") {
		site.Approximate = model.Geodetic{
			Longitude: sexagesimal(row.Raw("lon_deg"), row.Int("lon_deg"), row.Int("lon_min"), row.Float("lon_sec")),
			Latitude:  sexagesimal(row.Raw("lat_deg"), row.Int("lat_deg"), row.Int("lat_min"), row.Float("lat_sec")),
			Altitude:  row.Float("height"),
		}
		site.HasApproximate = true
	}
	return site, nil
}

// sexagesimal folds degrees, minutes and seconds, carrying the sign of the
// degree field (which may be "-0").
func sexagesimal(rawDeg string, deg, min int, sec float64) float64 {
	neg := strings.Contains(rawDeg, "-")
	if deg < 0 {
		deg = -deg
	}
	v := float64(deg) + float64(min)/60 + sec/3600
	if neg {
		return -v
	}
	return v
}

var solutionTypes = map[string]bool{
	"STAX": true, "STAY": true, "STAZ": true,
	"VELX": true, "VELY": true, "VELZ": true,
}

// decodeEstimate returns ok=false for parameter types other than station
// position and velocity.
func decodeEstimate(line string, lineNo int) (Estimate, bool, error) {
	row, err := estimateSchema.Decode(line, lineNo)
	if err != nil {
		return Estimate{}, false, err
	}
	typ := row.Text("type")
	if !solutionTypes[typ] {
		return Estimate{}, false, nil
	}
	ref, err := timectrl.DecodeEpoch(row.Raw("ref_epoch"))
	if err != nil {
		return Estimate{}, false, &fixedcol.FieldParseError{LineNo: lineNo, Line: line, Field: "ref_epoch", Start: 27, End: 39, Err: err}
	}
	return Estimate{
		Index:          row.Int("index"),
		Type:           typ,
		Key:            model.StationKey{Code: row.Int("code"), PlacementTag: row.Char("pt")},
		Solution:       row.Int("soln"),
		ReferenceEpoch: ref,
		Unit:           row.Text("unit"),
		Constraint:     row.Int("constraint"),
		Value:          row.Float("value"),
		StdDev:         row.Float("std_dev"),
	}, true, nil
}

type solutionKey struct {
	key  model.StationKey
	soln int
}

type partial struct {
	entry model.StationCatalogEntry
	have  map[string]bool
}

// pivot folds the six per-axis rows of each (station, solution) into one
// catalog entry.
func pivot(estimates []Estimate, sites map[model.StationKey]model.SiteInfo) (map[model.StationKey][]model.StationCatalogEntry, error) {
	groups := make(map[solutionKey]*partial)
	var order []solutionKey
	for _, e := range estimates {
		sk := solutionKey{key: e.Key, soln: e.Solution}
		p, ok := groups[sk]
		if !ok {
			p = &partial{
				entry: model.StationCatalogEntry{
					Key:       e.Key,
					StationID: sites[e.Key].StationID,
					Solution:  e.Solution,
				},
				have: make(map[string]bool, 6),
			}
			groups[sk] = p
			order = append(order, sk)
		}
		if p.have[e.Type] {
			return nil, fmt.Errorf("sinex: station %s solution %d: duplicate %s at index %d", e.Key, e.Solution, e.Type, e.Index)
		}
		p.have[e.Type] = true
		assign(&p.entry, e)
	}

	out := make(map[model.StationKey][]model.StationCatalogEntry)
	for _, sk := range order {
		p := groups[sk]
		for _, axis := range []string{"STAX", "STAY", "STAZ"} {
			if !p.have[axis] {
				return nil, fmt.Errorf("%w: station %s solution %d has no %s", ErrIncompleteSolution, sk.key, sk.soln, axis)
			}
		}
		out[sk.key] = append(out[sk.key], p.entry)
	}
	for key := range out {
		sols := out[key]
		sort.Slice(sols, func(i, j int) bool { return sols[i].Solution < sols[j].Solution })
	}
	return out, nil
}

func assign(entry *model.StationCatalogEntry, e Estimate) {
	switch e.Type {
	case "STAX":
		entry.Position.X, entry.PositionSigma.X = e.Value, e.StdDev
		entry.ReferenceEpoch = e.ReferenceEpoch
	case "STAY":
		entry.Position.Y, entry.PositionSigma.Y = e.Value, e.StdDev
	case "STAZ":
		entry.Position.Z, entry.PositionSigma.Z = e.Value, e.StdDev
	case "VELX":
		entry.Velocity.X, entry.VelocitySigma.X = e.Value, e.StdDev
	case "VELY":
		entry.Velocity.Y, entry.VelocitySigma.Y = e.Value, e.StdDev
	case "VELZ":
		entry.Velocity.Z, entry.VelocitySigma.Z = e.Value, e.StdDev
	}
}
