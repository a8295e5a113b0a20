package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/model"
)

type eccTable map[string][]model.EccentricityRecord

func (t eccTable) Lookup(id string, epoch time.Time) (model.EccentricityRecord, bool) {
	for _, r := range t[id] {
		if r.Contains(epoch) {
			return r, true
		}
	}
	return model.EccentricityRecord{}, false
}

type countingMetrics struct {
	noopMetrics
	fallbacks  int
	reductions int
}

func (c *countingMetrics) EccentricityFallback(string)    { c.fallbacks++ }
func (c *countingMetrics) ObserveReduction(time.Duration) { c.reductions++ }

var refEpoch = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

func grazEntry() model.StationCatalogEntry {
	return model.StationCatalogEntry{
		Key:            model.StationKey{Code: 7839, PlacementTag: 'A'},
		StationID:      "78393402",
		ReferenceEpoch: refEpoch,
		Position:       r3.Vec{X: 4194426.5, Y: 1162694.1, Z: 4647246.8},
	}
}

func TestPositionAtReferenceEpochIsExact(t *testing.T) {
	r := NewStationPositionReducer(nil)
	entry := grazEntry()

	got, err := r.Position(entry, nil, entry.ReferenceEpoch)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got != entry.Position {
		t.Fatalf("Position = %+v, want %+v", got, entry.Position)
	}
}

func TestPositionLinearExtrapolation(t *testing.T) {
	r := NewStationPositionReducer(nil)
	entry := grazEntry()
	entry.Velocity = r3.Vec{X: 1}
	at := entry.ReferenceEpoch.Add(time.Duration(365.25 * 24 * float64(time.Hour)))

	got, err := r.Position(entry, nil, at)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got.X-entry.Position.X != 1 || got.Y != entry.Position.Y || got.Z != entry.Position.Z {
		t.Fatalf("shift = %+v, want +1 m on X", r3.Sub(got, entry.Position))
	}

	ecc := &model.EccentricityRecord{Frame: model.FrameXYZ, Offset: r3.Vec{X: 0.5, Y: -0.25}}
	withEcc, err := r.Position(entry, ecc, at)
	if err != nil {
		t.Fatalf("Position with ecc: %v", err)
	}
	if withEcc.X-got.X != 0.5 || withEcc.Y-got.Y != -0.25 {
		t.Fatalf("eccentricity not added independently: %+v vs %+v", withEcc, got)
	}

	back, err := r.Position(entry, nil, entry.ReferenceEpoch.AddDate(-1, 0, 0))
	if err != nil {
		t.Fatalf("Position backwards: %v", err)
	}
	if back.X >= entry.Position.X {
		t.Fatalf("expected negative shift before reference epoch, got %v", back.X-entry.Position.X)
	}
}

func TestPositionRotatesENUEccentricity(t *testing.T) {
	r := NewStationPositionReducer(nil)
	entry := grazEntry()
	ecc := &model.EccentricityRecord{Frame: model.FrameENU, Offset: r3.Vec{Z: 2}}

	got, err := r.Position(entry, ecc, entry.ReferenceEpoch)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	shift := r3.Sub(got, entry.Position)
	if !near(r3.Norm(shift), 2, 1e-9) {
		t.Fatalf("shift length = %v, want 2", r3.Norm(shift))
	}
	// An "up" offset points away from the geocentre.
	if r3.Dot(shift, r3.Unit(entry.Position)) < 1.99 {
		t.Fatalf("shift %+v is not radial", shift)
	}
}

func TestReduceStrictPolicy(t *testing.T) {
	r := NewStationPositionReducer(nil)
	_, err := r.Reduce(context.Background(), grazEntry(), eccTable{}, refEpoch)
	if !errors.Is(err, ErrNoEccentricityForEpoch) {
		t.Fatalf("Reduce error = %v, want ErrNoEccentricityForEpoch", err)
	}
}

func TestReduceZeroFallbackIsRecorded(t *testing.T) {
	m := &countingMetrics{}
	r := NewStationPositionReducer(nil, WithEccentricityPolicy(EccentricityZeroFallback), WithReducerMetrics(m))
	entry := grazEntry()

	got, err := r.Reduce(context.Background(), entry, nil, refEpoch)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if got.Position != entry.Position {
		t.Fatalf("fallback position = %+v, want %+v", got.Position, entry.Position)
	}
	if m.fallbacks != 1 || m.reductions != 1 {
		t.Fatalf("metrics fallbacks=%d reductions=%d, want 1/1", m.fallbacks, m.reductions)
	}
	if !near(got.Latitude, 47.067, 1e-2) || got.Frame.Name != "78393402" {
		t.Fatalf("unexpected reduced position: %+v", got)
	}
}

func TestReduceSelectsWindowByEpoch(t *testing.T) {
	table := eccTable{"78393402": {
		{StationID: "78393402", ValidTo: refEpoch.AddDate(0, 0, -1), Frame: model.FrameXYZ, Offset: r3.Vec{X: 10}},
		{StationID: "78393402", ValidFrom: refEpoch, Frame: model.FrameXYZ, Offset: r3.Vec{X: 1}},
	}}
	r := NewStationPositionReducer(nil)
	entry := grazEntry()

	got, err := r.Reduce(context.Background(), entry, table, refEpoch.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if got.Position.X-entry.Position.X != 1 {
		t.Fatalf("X shift = %v, want 1 from the current window", got.Position.X-entry.Position.X)
	}

	all, err := r.ReduceAll(context.Background(), []model.StationCatalogEntry{entry, entry}, table, refEpoch.AddDate(-2, 0, 0))
	if err != nil {
		t.Fatalf("ReduceAll: %v", err)
	}
	if len(all) != 2 || all[0].Position.X-entry.Position.X != 10 {
		t.Fatalf("ReduceAll = %+v", all)
	}
}

func TestParseEccentricityPolicy(t *testing.T) {
	for in, want := range map[string]EccentricityPolicy{"": EccentricityStrict, "STRICT": EccentricityStrict, "zero": EccentricityZeroFallback} {
		got, err := ParseEccentricityPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseEccentricityPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseEccentricityPolicy("loose"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
