package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/slr-reduction/model"
)

// Pass is an interval during which a satellite stays above a station's
// elevation mask. Rise and Set are resolved to the sampling step.
type Pass struct {
	StationID       string
	Rise            time.Time
	Set             time.Time
	MaxElevationDeg float64
	MaxElevationAt  time.Time
	MinRange        float64 // metres
}

// PredictPasses samples pred over [start, end] and returns the intervals
// where the elevation seen from station is at least minElevationDeg. A
// pass still open at end is closed there.
func PredictPasses(ctx context.Context, pred EphemerisPredictor, station model.ReducedStationPosition, start, end time.Time, step time.Duration, minElevationDeg float64) ([]Pass, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.PredictPasses")
	defer span.End()
	span.SetAttributes(attribute.String("station_id", station.StationID))

	if !end.After(start) {
		return nil, fmt.Errorf("pass window end %s is not after start %s", end, start)
	}
	samples, err := SampleEphemeris(ctx, pred, start, end, step)
	if err != nil {
		return nil, err
	}

	var (
		passes []Pass
		open   *Pass
	)
	for _, s := range samples {
		look := Look(station.Frame, s.Position)
		if look.ElevationDeg < minElevationDeg {
			if open != nil {
				open.Set = s.Epoch
				passes = append(passes, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &Pass{StationID: station.StationID, Rise: s.Epoch, MaxElevationDeg: look.ElevationDeg, MaxElevationAt: s.Epoch, MinRange: look.Range}
		}
		if look.ElevationDeg > open.MaxElevationDeg {
			open.MaxElevationDeg = look.ElevationDeg
			open.MaxElevationAt = s.Epoch
		}
		if look.Range < open.MinRange {
			open.MinRange = look.Range
		}
	}
	if open != nil {
		open.Set = end
		passes = append(passes, *open)
	}
	span.SetAttributes(attribute.Int("passes", len(passes)))
	return passes, nil
}
