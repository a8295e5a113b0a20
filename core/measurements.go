package core

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

// MeasurementBuilder turns parsed CRD records into calibrated range
// measurements. It holds no per-file state and is safe for concurrent use.
type MeasurementBuilder struct {
	log     logging.Logger
	metrics MetricsRecorder
	parser  crd.Parser
}

// BuilderOption customises a MeasurementBuilder.
type BuilderOption func(*MeasurementBuilder)

// WithBuilderLogger sets the logger used for record warnings.
func WithBuilderLogger(l logging.Logger) BuilderOption {
	return func(b *MeasurementBuilder) {
		if l != nil {
			b.log = l
		}
	}
}

// WithBuilderMetrics wires a metrics recorder.
func WithBuilderMetrics(m MetricsRecorder) BuilderOption {
	return func(b *MeasurementBuilder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithCRDParser replaces the default structured parser.
func WithCRDParser(p crd.Parser) BuilderOption {
	return func(b *MeasurementBuilder) { b.parser = p }
}

// NewMeasurementBuilder returns a builder with a no-op logger and metrics.
func NewMeasurementBuilder(opts ...BuilderOption) *MeasurementBuilder {
	b := &MeasurementBuilder{log: logging.Noop(), metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromBlock derives one measurement per range record with a known epoch
// event. Records with an unknown event produce a warning and no
// measurement.
func (b *MeasurementBuilder) FromBlock(ctx context.Context, block crd.DataBlock) ([]model.RangeMeasurement, []crd.Warning) {
	day := block.Session.Header.Date()
	meteo := sortedMeteo(block.Meteo)
	stationID := block.Station.ID

	warnings := append([]crd.Warning(nil), block.Warnings...)
	out := make([]model.RangeMeasurement, 0, len(block.Ranges))
	for _, s := range block.Ranges {
		timing, err := DeriveTiming(day, s.TimeOfDay, s.TimeOfFlight, s.EpochEvent)
		if err != nil {
			if !hasWarning(warnings, s.LineNo) {
				warnings = append(warnings, crd.Warning{LineNo: s.LineNo, Err: err})
			}
			b.warnEpochEvent(ctx, stationID, s)
			continue
		}

		m := model.RangeMeasurement{
			StationID:    stationID,
			TransmitTime: timing.Transmit,
			BounceTime:   timing.Bounce,
			ReceiveTime:  timing.Receive,
			Range:        timing.Range,
		}
		if cfg, ok := configFor(block.Configs, s.SystemConfigID); ok {
			m.WavelengthUM = cfg.WavelengthNM / 1000
		}
		if met, ok := meteoAt(meteo, s.TimeOfDay); ok {
			m.PressureMbar = met.Pressure
			m.TemperatureK = met.Temperature
			m.Humidity = met.Humidity / 100
		}
		out = append(out, m)
	}

	b.metrics.RecordsParsed(model.RecordRange.String(), len(block.Ranges))
	b.metrics.RecordsParsed(model.RecordMeteo.String(), len(block.Meteo))
	b.metrics.MeasurementsEmitted(stationID, len(out))
	return out, warnings
}

// FromFile builds measurements for every block, sorted by receive time.
func (b *MeasurementBuilder) FromFile(ctx context.Context, file *crd.File) ([]model.RangeMeasurement, []crd.Warning) {
	var (
		all      []model.RangeMeasurement
		warnings []crd.Warning
	)
	for _, block := range file.Blocks {
		ms, ws := b.FromBlock(ctx, block)
		all = append(all, ms...)
		warnings = append(warnings, ws...)
	}
	SortByReceiveTime(all)
	return all, warnings
}

// FromLegacy builds measurements from a legacy parse. The legacy path
// carries no configuration or meteorology, so those fields stay zero.
func (b *MeasurementBuilder) FromLegacy(ctx context.Context, stationID string, res crd.LegacyResult) ([]model.RangeMeasurement, []crd.Warning) {
	block := crd.DataBlock{
		Station:  crd.Station{ID: stationID},
		Session:  crd.Session{Header: res.Header},
		Ranges:   res.Ranges,
		Warnings: res.Warnings,
	}
	out, warnings := b.FromBlock(ctx, block)
	SortByReceiveTime(out)
	return out, warnings
}

func (b *MeasurementBuilder) warnEpochEvent(ctx context.Context, stationID string, s model.RangeSample) {
	b.log.Warn(ctx, "unrecognized epoch event; no timing derived",
		logging.String("station_id", stationID),
		logging.Int("line", s.LineNo),
		logging.Int("epoch_event", int(s.EpochEvent)),
	)
	b.metrics.EpochEventWarning(stationID)
}

// SortByReceiveTime orders measurements by receive time, keeping the file
// order for equal instants.
func SortByReceiveTime(ms []model.RangeMeasurement) {
	slices.SortStableFunc(ms, func(a, b model.RangeMeasurement) int {
		return a.ReceiveTime.Compare(b.ReceiveTime)
	})
}

func hasWarning(ws []crd.Warning, lineNo int) bool {
	for _, w := range ws {
		if w.LineNo == lineNo && errors.Is(w, crd.ErrUnrecognizedEpochEvent) {
			return true
		}
	}
	return false
}

// configFor matches the range record's system configuration, falling
// back to the first configuration of the block.
func configFor(cfgs []model.ConfigSample, id string) (model.ConfigSample, bool) {
	if len(cfgs) == 0 {
		return model.ConfigSample{}, false
	}
	for _, c := range cfgs {
		if c.SystemConfigID == id {
			return c, true
		}
	}
	return cfgs[0], true
}

func sortedMeteo(in []model.MeteoSample) []model.MeteoSample {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b model.MeteoSample) int {
		return compareFloat(a.TimeOfDay, b.TimeOfDay)
	})
	return out
}

// meteoAt returns the most recent sample at or before tod, or the
// earliest later sample when none precedes it.
func meteoAt(sorted []model.MeteoSample, tod float64) (model.MeteoSample, bool) {
	if len(sorted) == 0 {
		return model.MeteoSample{}, false
	}
	i, found := slices.BinarySearchFunc(sorted, tod, func(m model.MeteoSample, t float64) int {
		return compareFloat(m.TimeOfDay, t)
	})
	switch {
	case found:
		return sorted[i], true
	case i > 0:
		return sorted[i-1], true
	default:
		return sorted[0], true
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MeasurementSpan is the receive-time coverage of a measurement set.
func MeasurementSpan(ms []model.RangeMeasurement) (first, last time.Time) {
	for i, m := range ms {
		if i == 0 || m.ReceiveTime.Before(first) {
			first = m.ReceiveTime
		}
		if i == 0 || m.ReceiveTime.After(last) {
			last = m.ReceiveTime
		}
	}
	return first, last
}
