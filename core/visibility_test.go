package core

import (
	"context"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/model"
)

type predictorFunc func(time.Time) (r3.Vec, error)

func (f predictorFunc) PositionAt(t time.Time) (r3.Vec, error) { return f(t) }

// overheadPass flies east over the frame origin at 500 km height and
// 10 km/s, crossing the zenith 300 s after t0.
func overheadPass(frame model.GroundFrame, t0 time.Time) predictorFunc {
	return func(t time.Time) (r3.Vec, error) {
		along := (t.Sub(t0).Seconds() - 300) * 10e3
		return r3.Add(frame.Origin, r3.Add(r3.Scale(500e3, frame.Up), r3.Scale(along, frame.East))), nil
	}
}

func equatorStation(t *testing.T) model.ReducedStationPosition {
	t.Helper()
	frame, err := WGS84{}.GroundFrame(model.Geodetic{}, "EQTR")
	if err != nil {
		t.Fatalf("GroundFrame: %v", err)
	}
	return model.ReducedStationPosition{StationID: "00000000", Position: frame.Origin, Frame: frame}
}

func TestPredictPassesFindsZenithPass(t *testing.T) {
	station := equatorStation(t)
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

	passes, err := PredictPasses(context.Background(), overheadPass(station.Frame, t0), station, t0, t0.Add(10*time.Minute), 10*time.Second, 40)
	if err != nil {
		t.Fatalf("PredictPasses: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("passes = %d, want 1", len(passes))
	}
	p := passes[0]
	if !p.Rise.Equal(t0.Add(250*time.Second)) || !p.Set.Equal(t0.Add(360*time.Second)) {
		t.Fatalf("pass = %v..%v, want +250s..+360s", p.Rise, p.Set)
	}
	if !near(p.MaxElevationDeg, 90, 1e-6) || !p.MaxElevationAt.Equal(t0.Add(300*time.Second)) {
		t.Fatalf("max elevation = %v at %v, want 90 at +300s", p.MaxElevationDeg, p.MaxElevationAt)
	}
	if !near(p.MinRange, 500e3, 1e-3) {
		t.Fatalf("min range = %v, want 500 km", p.MinRange)
	}
}

func TestPredictPassesClosesOpenPassAtEnd(t *testing.T) {
	station := equatorStation(t)
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	end := t0.Add(320 * time.Second)

	passes, err := PredictPasses(context.Background(), overheadPass(station.Frame, t0), station, t0, end, 10*time.Second, 40)
	if err != nil {
		t.Fatalf("PredictPasses: %v", err)
	}
	if len(passes) != 1 || !passes[0].Set.Equal(end) {
		t.Fatalf("passes = %+v, want one closed at the window end", passes)
	}
}

func TestPredictPassesRejectsEmptyWindow(t *testing.T) {
	station := equatorStation(t)
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := PredictPasses(context.Background(), overheadPass(station.Frame, t0), station, t0, t0, time.Second, 10); err == nil {
		t.Fatalf("expected error for empty window")
	}
}
