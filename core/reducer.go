package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

const tracerName = "github.com/signalsfoundry/slr-reduction/core"

// DaysPerYear is the Julian year used to scale station velocities.
const DaysPerYear = 365.25

// ErrNoEccentricityForEpoch is returned under EccentricityStrict when no
// eccentricity window contains the requested epoch.
var ErrNoEccentricityForEpoch = errors.New("no eccentricity for epoch")

// EccentricityPolicy decides what happens when a station has no
// eccentricity valid at the requested epoch.
type EccentricityPolicy int

const (
	// EccentricityStrict fails the reduction.
	EccentricityStrict EccentricityPolicy = iota
	// EccentricityZeroFallback logs a warning and applies no offset.
	EccentricityZeroFallback
)

func (p EccentricityPolicy) String() string {
	if p == EccentricityZeroFallback {
		return "zero"
	}
	return "strict"
}

// ParseEccentricityPolicy accepts "strict" or "zero".
func ParseEccentricityPolicy(s string) (EccentricityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return EccentricityStrict, nil
	case "zero", "fallback":
		return EccentricityZeroFallback, nil
	default:
		return 0, fmt.Errorf("unknown eccentricity policy %q", s)
	}
}

// EccentricityLookup finds the eccentricity valid for a station at an epoch.
type EccentricityLookup interface {
	Lookup(stationID string, epoch time.Time) (model.EccentricityRecord, bool)
}

// StationPositionReducer propagates catalog coordinates to an epoch.
type StationPositionReducer struct {
	geo     Geodesy
	policy  EccentricityPolicy
	log     logging.Logger
	metrics MetricsRecorder
}

// ReducerOption customises a StationPositionReducer.
type ReducerOption func(*StationPositionReducer)

// WithEccentricityPolicy sets the missing-eccentricity policy.
func WithEccentricityPolicy(p EccentricityPolicy) ReducerOption {
	return func(r *StationPositionReducer) { r.policy = p }
}

// WithReducerLogger sets the logger used for fallback warnings.
func WithReducerLogger(l logging.Logger) ReducerOption {
	return func(r *StationPositionReducer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithReducerMetrics wires a metrics recorder.
func WithReducerMetrics(m MetricsRecorder) ReducerOption {
	return func(r *StationPositionReducer) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewStationPositionReducer builds a reducer. A nil geo uses WGS84.
func NewStationPositionReducer(geo Geodesy, opts ...ReducerOption) *StationPositionReducer {
	if geo == nil {
		geo = WGS84{}
	}
	r := &StationPositionReducer{
		geo:     geo,
		policy:  EccentricityStrict,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured eccentricity policy.
func (r *StationPositionReducer) Policy() EccentricityPolicy { return r.policy }

// YearsSince returns the elapsed time from ref to at in Julian years.
func YearsSince(ref, at time.Time) float64 {
	return at.Sub(ref).Hours() / 24 / DaysPerYear
}

// Position returns the Cartesian position of entry at epoch:
// reference position plus velocity times elapsed years plus the
// eccentricity offset. ENU offsets are rotated through the station's
// ground frame first. A nil ecc means no offset.
func (r *StationPositionReducer) Position(entry model.StationCatalogEntry, ecc *model.EccentricityRecord, at time.Time) (r3.Vec, error) {
	pos := r3.Add(entry.Position, r3.Scale(YearsSince(entry.ReferenceEpoch, at), entry.Velocity))
	if ecc == nil {
		return pos, nil
	}

	switch ecc.Frame {
	case model.FrameXYZ:
		return r3.Add(pos, ecc.Offset), nil
	case model.FrameENU:
		g, err := r.geo.ToGeodetic(pos, at)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("station %s: %w", entry.Key, err)
		}
		frame, err := r.geo.GroundFrame(g, entry.StationID)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("station %s: %w", entry.Key, err)
		}
		return r3.Add(pos, ENUToECEF(frame, ecc.Offset)), nil
	default:
		return r3.Vec{}, fmt.Errorf("station %s: unsupported eccentricity frame %v", entry.Key, ecc.Frame)
	}
}

// Reduce computes the station position, geodetic coordinates and ground
// frame at epoch, selecting the eccentricity whose window contains epoch.
func (r *StationPositionReducer) Reduce(ctx context.Context, entry model.StationCatalogEntry, eccs EccentricityLookup, at time.Time) (model.ReducedStationPosition, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Reduce")
	defer span.End()
	span.SetAttributes(
		attribute.String("station_id", entry.StationID),
		attribute.String("epoch", at.UTC().Format(time.RFC3339)),
	)
	start := time.Now()
	defer func() { r.metrics.ObserveReduction(time.Since(start)) }()

	var ecc *model.EccentricityRecord
	if eccs != nil {
		if rec, ok := eccs.Lookup(entry.StationID, at); ok {
			ecc = &rec
		}
	}
	if ecc == nil {
		if r.policy == EccentricityStrict {
			err := fmt.Errorf("%w: station %s (%s) at %s", ErrNoEccentricityForEpoch, entry.StationID, entry.Key, at.UTC().Format(time.RFC3339))
			span.RecordError(err)
			return model.ReducedStationPosition{}, err
		}
		r.log.Warn(ctx, "no eccentricity valid at epoch; applying zero offset",
			logging.String("station_id", entry.StationID),
			logging.String("station", entry.Key.String()),
			logging.Time("epoch", at),
		)
		r.metrics.EccentricityFallback(entry.StationID)
	}

	pos, err := r.Position(entry, ecc, at)
	if err != nil {
		span.RecordError(err)
		return model.ReducedStationPosition{}, err
	}
	g, err := r.geo.ToGeodetic(pos, at)
	if err != nil {
		span.RecordError(err)
		return model.ReducedStationPosition{}, fmt.Errorf("station %s: %w", entry.Key, err)
	}
	frame, err := r.geo.GroundFrame(g, entry.StationID)
	if err != nil {
		span.RecordError(err)
		return model.ReducedStationPosition{}, fmt.Errorf("station %s: %w", entry.Key, err)
	}

	return model.ReducedStationPosition{
		StationID: entry.StationID,
		Key:       entry.Key,
		Epoch:     at,
		Position:  pos,
		Geodetic:  g,
		Frame:     frame,
	}, nil
}

// ReduceAll reduces every entry at the same epoch. The first failure
// aborts the run.
func (r *StationPositionReducer) ReduceAll(ctx context.Context, entries []model.StationCatalogEntry, eccs EccentricityLookup, at time.Time) ([]model.ReducedStationPosition, error) {
	out := make([]model.ReducedStationPosition, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := r.Reduce(ctx, e, eccs, at)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
