package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/archive"
	"github.com/signalsfoundry/slr-reduction/internal/config"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

func runFetch(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return usageErr("%v", err)
	}
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	cfg.RegisterArchiveFlags(fs)
	dataType := fs.String("type", "npt", "data type: npt, frd or cpf")
	satellite := fs.String("satellite", "", "COSPAR id, e.g. 7603901")
	startFlag := fs.String("start", "", "window start, RFC 3339 or YYYY-MM-DD")
	endFlag := fs.String("end", "", "window end, RFC 3339 or YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageErr("%v", err)
	}

	dt, err := archive.ParseDataType(*dataType)
	if err != nil {
		return usageErr("-type: %v", err)
	}
	if *satellite == "" {
		return usageErr("-satellite is required")
	}
	start, err := parseEpoch(*startFlag)
	if err != nil {
		return usageErr("-start: %v", err)
	}
	end, err := parseEpoch(*endFlag)
	if err != nil {
		return usageErr("-end: %v", err)
	}
	if len(*endFlag) == len(time.DateOnly) {
		// A bare end date covers the whole day.
		end = end.Add(24*time.Hour - time.Second)
	}

	client := archive.NewClient(cfg.Archive, archive.WithLogger(log))
	q := archive.Query{Type: dt, Satellite: *satellite, Start: start, End: end}
	if dt == archive.DataCPF {
		samples, err := archive.FetchEphemeris(ctx, client, q, log)
		if err != nil {
			return err
		}
		return writeEphemeris(stdout, samples)
	}

	datasets, err := client.Query(ctx, q)
	if err != nil {
		return err
	}
	log.Info(ctx, "archive query", logging.Int("datasets", len(datasets)), logging.String("satellite", *satellite))

	sources := make([]core.TrackingSource, 0, len(datasets))
	for _, d := range datasets {
		sources = append(sources, datasetSource(client, dt, d))
	}
	// One bad dataset should not discard the rest of the window.
	cfg.KeepGoing = true
	builder := core.NewMeasurementBuilder(core.WithBuilderLogger(log))
	results, err := builder.ProcessTracking(ctx, sources, core.BatchOptions{Workers: cfg.Workers, KeepGoing: cfg.KeepGoing})
	if err != nil {
		return err
	}

	var all []model.RangeMeasurement
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", res.Source, res.Err)
			continue
		}
		all = append(all, res.Measurements...)
	}
	core.SortByReceiveTime(all)
	return writeMeasurements(stdout, all)
}

// datasetSource downloads a dataset lazily when the batch opens it.
func datasetSource(client archive.Source, dt archive.DataType, d archive.Dataset) core.TrackingSource {
	return core.TrackingSource{
		Name: fmt.Sprintf("%s-%d-%s", d.Station, d.ID, d.StartData.Format(time.DateOnly)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			lines, err := client.Download(ctx, dt, d.ID)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(archive.Reader(lines)), nil
		},
	}
}

func writeEphemeris(w io.Writer, samples []model.EphemerisSample) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"epoch", "x_m", "y_m", "z_m"})
	for _, s := range samples {
		_ = cw.Write([]string{
			s.Epoch.UTC().Format(time.RFC3339Nano),
			formatFloat(s.Position.X, 3),
			formatFloat(s.Position.Y, 3),
			formatFloat(s.Position.Z, 3),
		})
	}
	cw.Flush()
	return cw.Error()
}
