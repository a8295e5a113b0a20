package core

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/model"
)

const crdFixture = "../internal/crd/testdata/graz_lageos1.npt"

type trackingMetrics struct {
	noopMetrics
	epochWarnings int
	emitted       int
	failures      int
}

func (m *trackingMetrics) EpochEventWarning(string)            { m.epochWarnings++ }
func (m *trackingMetrics) MeasurementsEmitted(_ string, n int) { m.emitted += n }
func (m *trackingMetrics) ParseFailed(string)                  { m.failures++ }

func loadFixture(t *testing.T) *crd.File {
	t.Helper()
	f, err := os.Open(crdFixture)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	file, err := crd.Parser{}.Parse(f)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return file
}

func TestFromBlockAttachesConfigAndMeteo(t *testing.T) {
	file := loadFixture(t)
	ms, warnings := NewMeasurementBuilder().FromBlock(context.Background(), file.Blocks[0])
	if len(ms) != 3 || len(warnings) != 0 {
		t.Fatalf("measurements=%d warnings=%d, want 3 and 0", len(ms), len(warnings))
	}

	first := ms[0]
	if first.StationID != "78393402" || !near(first.WavelengthUM, 0.532, 1e-12) {
		t.Fatalf("first = %+v", first)
	}
	if first.PressureMbar != 965.20 || first.TemperatureK != 285.10 || !near(first.Humidity, 0.70, 1e-12) {
		t.Fatalf("first meteo = %v/%v/%v", first.PressureMbar, first.TemperatureK, first.Humidity)
	}

	// After midnight the rolled-over meteo sample is the most recent one.
	last := ms[2]
	if last.PressureMbar != 965.40 || !near(last.Humidity, 0.71, 1e-12) {
		t.Fatalf("last meteo = %v/%v", last.PressureMbar, last.Humidity)
	}
	wantTransmit := time.Date(2019, 6, 2, 0, 0, 30, 250_000_000, time.UTC)
	if !last.TransmitTime.Equal(wantTransmit) {
		t.Fatalf("transmit after midnight = %v, want %v", last.TransmitTime, wantTransmit)
	}
	for _, m := range ms {
		if d := m.ReceiveTime.Sub(m.TransmitTime); d <= 0 || d > 50*time.Millisecond {
			t.Fatalf("time of flight %v out of range for %+v", d, m)
		}
	}
}

func TestFromFileSortsAndSkipsUnknownEvents(t *testing.T) {
	metrics := &trackingMetrics{}
	b := NewMeasurementBuilder(WithBuilderMetrics(metrics))
	ms, warnings := b.FromFile(context.Background(), loadFixture(t))

	if len(ms) != 4 {
		t.Fatalf("measurements = %d, want 4", len(ms))
	}
	if len(warnings) != 1 || !errors.Is(warnings[0], crd.ErrUnrecognizedEpochEvent) {
		t.Fatalf("warnings = %+v", warnings)
	}
	for i := 1; i < len(ms); i++ {
		if ms[i].ReceiveTime.Before(ms[i-1].ReceiveTime) {
			t.Fatalf("measurements not sorted at %d", i)
		}
	}
	if metrics.epochWarnings != 1 || metrics.emitted != 4 {
		t.Fatalf("metrics warnings=%d emitted=%d", metrics.epochWarnings, metrics.emitted)
	}

	ir := ms[3]
	if !near(ir.WavelengthUM, 1.064, 1e-12) || ir.PressureMbar != 966 {
		t.Fatalf("second block measurement = %+v", ir)
	}
	// Event 1: the recorded time of day is the bounce time.
	if want := time.Date(2019, 6, 2, 2, 1, 40, 0, time.UTC); !ir.BounceTime.Equal(want) {
		t.Fatalf("bounce = %v, want %v", ir.BounceTime, want)
	}
	first, last := MeasurementSpan(ms)
	if !first.Equal(ms[0].ReceiveTime) || !last.Equal(ir.ReceiveTime) {
		t.Fatalf("span = %v..%v", first, last)
	}
}

func TestFromLegacy(t *testing.T) {
	res, err := crd.NewLegacyParser().ParseLines([]string{
		"H4  1 2019 06 01 00 00 00",
		"10 200.0 0.01 a 2",
		"10 100.0 0.01 a 1",
		"10 150.0 0.01 a 5",
	})
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	ms, warnings := NewMeasurementBuilder().FromLegacy(context.Background(), "70900513", res)
	if len(ms) != 2 || len(warnings) != 1 {
		t.Fatalf("measurements=%d warnings=%d, want 2 and 1", len(ms), len(warnings))
	}
	if ms[0].ReceiveTime.After(ms[1].ReceiveTime) || ms[0].StationID != "70900513" {
		t.Fatalf("legacy measurements = %+v", ms)
	}
	if ms[0].WavelengthUM != 0 || ms[0].PressureMbar != 0 {
		t.Fatalf("legacy path should carry no meteo or config: %+v", ms[0])
	}
}

func TestMeteoAt(t *testing.T) {
	meteo := sortedMeteo([]model.MeteoSample{{TimeOfDay: 300, Pressure: 3}, {TimeOfDay: 100, Pressure: 1}, {TimeOfDay: 200, Pressure: 2}})
	cases := []struct {
		tod  float64
		want float64
	}{
		{50, 1}, {100, 1}, {150, 1}, {200, 2}, {299.9, 2}, {1000, 3},
	}
	for _, tc := range cases {
		got, ok := meteoAt(meteo, tc.tod)
		if !ok || got.Pressure != tc.want {
			t.Fatalf("meteoAt(%v) = %v, want pressure %v", tc.tod, got.Pressure, tc.want)
		}
	}
	if _, ok := meteoAt(nil, 10); ok {
		t.Fatalf("meteoAt on empty set reported a sample")
	}
}

func TestConfigFor(t *testing.T) {
	cfgs := []model.ConfigSample{{SystemConfigID: "a", WavelengthNM: 532}, {SystemConfigID: "b", WavelengthNM: 1064}}
	if c, _ := configFor(cfgs, "b"); c.WavelengthNM != 1064 {
		t.Fatalf("configFor(b) = %+v", c)
	}
	if c, _ := configFor(cfgs, "zz"); c.WavelengthNM != 532 {
		t.Fatalf("configFor fallback = %+v", c)
	}
	if _, ok := configFor(nil, "a"); ok {
		t.Fatalf("configFor on empty set reported a config")
	}
}

func stringSource(name, body string) TrackingSource {
	return TrackingSource{Name: name, Open: func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}}
}

func TestProcessTracking(t *testing.T) {
	broken := stringSource("broken.npt", "H4  1 2019 06 01 00 00 00\n11 10.0 0.05 a 2\n")
	sources := []TrackingSource{FileSource(crdFixture), broken, FileSource(crdFixture)}

	metrics := &trackingMetrics{}
	b := NewMeasurementBuilder(WithBuilderMetrics(metrics))

	if _, err := b.ProcessTracking(context.Background(), sources, BatchOptions{Workers: 2}); !errors.Is(err, crd.ErrUnterminatedBlock) {
		t.Fatalf("fail-fast error = %v, want ErrUnterminatedBlock", err)
	}

	results, err := b.ProcessTracking(context.Background(), sources, BatchOptions{Workers: 2, KeepGoing: true})
	if err != nil {
		t.Fatalf("ProcessTracking: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Source != "graz_lageos1.npt" || len(results[0].Measurements) != 4 || results[0].Err != nil {
		t.Fatalf("result[0] = %+v", results[0])
	}
	if results[1].Source != "broken.npt" || !errors.Is(results[1].Err, crd.ErrUnterminatedBlock) {
		t.Fatalf("result[1] = %+v", results[1])
	}
	if len(results[2].Measurements) != 4 {
		t.Fatalf("result[2] = %+v", results[2])
	}
	if metrics.failures < 2 {
		t.Fatalf("parse failures = %d, want at least 2", metrics.failures)
	}
}

func TestProcessTrackingCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMeasurementBuilder().ProcessTracking(ctx, []TrackingSource{FileSource(crdFixture)}, BatchOptions{KeepGoing: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
