package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/config"
	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

func runRanges(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return usageErr("%v", err)
	}
	fs := flag.NewFlagSet("ranges", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	legacy := fs.Bool("legacy", false, "read a single session with the legacy H4 parser")
	stationID := fs.String("station-id", "", "station id for legacy input")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageErr("%v", err)
	}
	files := fs.Args()
	if len(files) == 0 {
		return usageErr("at least one CRD file is required")
	}

	builder := core.NewMeasurementBuilder(core.WithBuilderLogger(log))

	if *legacy {
		var all []model.RangeMeasurement
		for _, path := range files {
			ms, warnings, err := legacyFile(ctx, builder, path, *stationID)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(stderr, "%s: %v\n", filepath.Base(path), w)
			}
			all = append(all, ms...)
		}
		core.SortByReceiveTime(all)
		logSpan(ctx, log, all)
		return writeMeasurements(stdout, all)
	}

	sources := make([]core.TrackingSource, 0, len(files))
	for _, path := range files {
		sources = append(sources, core.FileSource(path))
	}
	results, err := builder.ProcessTracking(ctx, sources, core.BatchOptions{Workers: cfg.Workers, KeepGoing: cfg.KeepGoing})
	if err != nil {
		return err
	}

	var (
		all    []model.RangeMeasurement
		failed int
	)
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", res.Source, res.Err)
			continue
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(stderr, "%s: %v\n", res.Source, w)
		}
		all = append(all, res.Measurements...)
	}
	core.SortByReceiveTime(all)
	logSpan(ctx, log, all)
	if err := writeMeasurements(stdout, all); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func legacyFile(ctx context.Context, builder *core.MeasurementBuilder, path, stationID string) ([]model.RangeMeasurement, []crd.Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	res, err := crd.NewLegacyParser().Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	ms, warnings := builder.FromLegacy(ctx, stationID, res)
	return ms, warnings, nil
}

func logSpan(ctx context.Context, log logging.Logger, ms []model.RangeMeasurement) {
	if len(ms) == 0 {
		log.Info(ctx, "no measurements extracted")
		return
	}
	first, last := core.MeasurementSpan(ms)
	log.Info(ctx, "extracted measurements",
		logging.Int("count", len(ms)),
		logging.Time("first_receive", first),
		logging.Time("last_receive", last),
	)
}

func writeMeasurements(w io.Writer, ms []model.RangeMeasurement) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"station_id", "transmit_time", "bounce_time", "receive_time", "range_m", "wavelength_um", "pressure_mbar", "temperature_k", "humidity"})
	for _, m := range ms {
		_ = cw.Write([]string{
			m.StationID,
			m.TransmitTime.UTC().Format(time.RFC3339Nano),
			m.BounceTime.UTC().Format(time.RFC3339Nano),
			m.ReceiveTime.UTC().Format(time.RFC3339Nano),
			formatFloat(m.Range, 4),
			formatFloat(m.WavelengthUM, 4),
			formatFloat(m.PressureMbar, 2),
			formatFloat(m.TemperatureK, 2),
			formatFloat(m.Humidity, 3),
		})
	}
	cw.Flush()
	return cw.Error()
}
