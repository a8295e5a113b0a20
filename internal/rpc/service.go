// Package rpc exposes station reduction and range extraction over gRPC.
package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/kb"
	"github.com/signalsfoundry/slr-reduction/model"
)

// Service implements ReductionServiceServer over a shared station catalog.
//
// ReduceStations request fields:
//
//	epoch        RFC 3339 time, required
//	station_ids  list of 8-digit station ids; all stations when absent
//	policy       "strict" or "zero"; the service default when absent
//
// ExtractRanges request fields:
//
//	crd          CRD text, required
//	legacy       use the legacy single-session parser
//	station_id   station id for legacy input, which carries none
type Service struct {
	catalog *kb.StationCatalog
	geo     core.Geodesy
	policy  core.EccentricityPolicy
	metrics core.MetricsRecorder
	log     logging.Logger
	builder *core.MeasurementBuilder
}

var _ ReductionServiceServer = (*Service)(nil)

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithGeodesy replaces the WGS84 collaborator.
func WithGeodesy(g core.Geodesy) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.geo = g
		}
	}
}

// WithDefaultPolicy sets the policy used when a request names none.
func WithDefaultPolicy(p core.EccentricityPolicy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithMetrics wires a metrics recorder into reductions and extraction.
func WithMetrics(m core.MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the base logger. Per-request loggers from the context
// take precedence.
func WithLogger(l logging.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a Service to catalog.
func NewService(catalog *kb.StationCatalog, opts ...ServiceOption) *Service {
	s := &Service{catalog: catalog, geo: core.WGS84{}, log: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = core.NewMeasurementBuilder(core.WithBuilderLogger(s.log), core.WithBuilderMetrics(s.metrics))
	return s
}

// ReduceStations propagates catalog stations to one epoch.
func (s *Service) ReduceStations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)
	if s.catalog == nil {
		return nil, ToStatusError(kb.ErrNotLoaded)
	}

	at, err := requiredTime(in, "epoch")
	if err != nil {
		return nil, ToStatusError(err)
	}
	policy := s.policy
	if name := stringField(in, "policy"); name != "" {
		if policy, err = core.ParseEccentricityPolicy(name); err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
	}

	var entries []model.StationCatalogEntry
	ids, err := stringList(in, "station_ids")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if len(ids) == 0 {
		if s.catalog.Len() == 0 {
			return nil, ToStatusError(kb.ErrNotLoaded)
		}
		entries = s.catalog.Entries()
	} else {
		for _, id := range ids {
			e, err := s.catalog.EntryByStationID(id)
			if err != nil {
				return nil, ToStatusError(err)
			}
			entries = append(entries, e)
		}
	}

	ctx, span := StartChildSpan(ctx, "rpc.ReduceStations",
		attribute.Int("stations", len(entries)),
		attribute.String("policy", policy.String()),
	)
	defer span.End()

	reducer := core.NewStationPositionReducer(s.geo,
		core.WithEccentricityPolicy(policy),
		core.WithReducerLogger(log),
		core.WithReducerMetrics(s.metrics),
	)
	positions, err := reducer.ReduceAll(ctx, entries, s.catalog, at)
	if err != nil {
		span.RecordError(err)
		log.Warn(ctx, "reduction failed", logging.Err(err))
		return nil, ToStatusError(err)
	}

	rows := make([]any, 0, len(positions))
	for _, p := range positions {
		doc := positionDoc(p)
		if site, ok := s.catalog.Site(p.Key); ok {
			doc["domes"] = site.DOMES
			doc["description"] = site.Description
		}
		rows = append(rows, doc)
	}
	out, err := structpb.NewStruct(map[string]any{
		"epoch":     at.UTC().Format(time.RFC3339Nano),
		"policy":    policy.String(),
		"positions": rows,
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	log.Info(ctx, "reduced stations", logging.Int("count", len(rows)), logging.Time("epoch", at))
	return out, nil
}

// ExtractRanges parses CRD text and returns calibrated measurements.
func (s *Service) ExtractRanges(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)
	text := stringField(in, "crd")
	if strings.TrimSpace(text) == "" {
		return nil, ToStatusError(fmt.Errorf("%w: crd is required", ErrInvalidRequest))
	}

	ctx, span := StartChildSpan(ctx, "rpc.ExtractRanges")
	defer span.End()

	var (
		ms       []model.RangeMeasurement
		warnings []crd.Warning
	)
	if boolField(in, "legacy") {
		res, err := crd.NewLegacyParser().Parse(strings.NewReader(text))
		if err != nil {
			span.RecordError(err)
			return nil, ToStatusError(err)
		}
		ms, warnings = s.builder.FromLegacy(ctx, stringField(in, "station_id"), res)
	} else {
		file, err := crd.Parser{}.Parse(strings.NewReader(text))
		if err != nil {
			span.RecordError(err)
			return nil, ToStatusError(err)
		}
		ms, warnings = s.builder.FromFile(ctx, file)
	}
	span.SetAttributes(attribute.Int("measurements", len(ms)), attribute.Int("warnings", len(warnings)))

	rows := make([]any, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, measurementDoc(m))
	}
	warns := make([]any, 0, len(warnings))
	for _, w := range warnings {
		warns = append(warns, map[string]any{"line": w.LineNo, "message": w.Err.Error()})
	}
	out, err := structpb.NewStruct(map[string]any{
		"measurements": rows,
		"warnings":     warns,
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	log.Info(ctx, "extracted ranges", logging.Int("measurements", len(rows)), logging.Int("warnings", len(warns)))
	return out, nil
}

func positionDoc(p model.ReducedStationPosition) map[string]any {
	return map[string]any{
		"station_id": p.StationID,
		"station":    p.Key.String(),
		"epoch":      p.Epoch.UTC().Format(time.RFC3339Nano),
		"x":          p.Position.X,
		"y":          p.Position.Y,
		"z":          p.Position.Z,
		"latitude":   p.Latitude,
		"longitude":  p.Longitude,
		"altitude":   p.Altitude,
	}
}

func measurementDoc(m model.RangeMeasurement) map[string]any {
	return map[string]any{
		"station_id":    m.StationID,
		"transmit_time": m.TransmitTime.UTC().Format(time.RFC3339Nano),
		"bounce_time":   m.BounceTime.UTC().Format(time.RFC3339Nano),
		"receive_time":  m.ReceiveTime.UTC().Format(time.RFC3339Nano),
		"range":         m.Range,
		"wavelength_um": m.WavelengthUM,
		"pressure_mbar": m.PressureMbar,
		"temperature_k": m.TemperatureK,
		"humidity":      m.Humidity,
	}
}

func stringField(in *structpb.Struct, name string) string {
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

func boolField(in *structpb.Struct, name string) bool {
	return in.GetFields()[name].GetBoolValue()
}

func requiredTime(in *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(in, name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrInvalidRequest, name)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, name, err)
	}
	return t.UTC(), nil
}

func stringList(in *structpb.Struct, name string) ([]string, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidRequest, name)
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s entries must be strings", ErrInvalidRequest, name)
		}
		out = append(out, strings.TrimSpace(sv.StringValue))
	}
	return out, nil
}
