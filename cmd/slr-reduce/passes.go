package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/config"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/kb"
)

func runPasses(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return usageErr("%v", err)
	}
	fs := flag.NewFlagSet("passes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	tlePath := fs.String("tle", "", "two-line element file")
	ids := fs.String("ids", "", "comma-separated station ids; all stations when empty")
	startFlag := fs.String("start", "", "window start, RFC 3339 or YYYY-MM-DD")
	duration := fs.Duration("duration", 24*time.Hour, "window length")
	step := fs.Duration("step", 30*time.Second, "sampling step")
	minElev := fs.Float64("min-elevation", 20, "elevation mask in degrees")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageErr("%v", err)
	}
	if cfg.StationFile == "" || *tlePath == "" {
		return usageErr("-stations and -tle are required")
	}
	start, err := parseEpoch(*startFlag)
	if err != nil {
		return usageErr("-start: %v", err)
	}

	f, err := os.Open(*tlePath)
	if err != nil {
		return err
	}
	_, line1, line2, err := core.ReadTLE(f)
	f.Close()
	if err != nil {
		return err
	}
	pred, err := core.NewSGP4Predictor(line1, line2)
	if err != nil {
		return err
	}

	catalog := kb.NewStationCatalog()
	if err := catalog.LoadFiles(cfg.StationFile, cfg.EccentricityFile); err != nil {
		return err
	}
	entries := catalog.Entries()
	if *ids != "" {
		entries = nil
		for _, id := range strings.Split(*ids, ",") {
			e, err := catalog.EntryByStationID(strings.TrimSpace(id))
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}

	// Station motion over a prediction window is far below the sampling
	// resolution, so each station is reduced once at the window start.
	reducer := core.NewStationPositionReducer(core.WGS84{},
		core.WithEccentricityPolicy(cfg.EccPolicy()),
		core.WithReducerLogger(log),
	)
	cw := csv.NewWriter(stdout)
	_ = cw.Write([]string{"station_id", "rise", "set", "max_elevation_deg", "max_elevation_at", "min_range_m"})
	end := start.Add(*duration)
	for _, e := range entries {
		station, err := reducer.Reduce(ctx, e, catalog, start)
		if err != nil {
			return err
		}
		passes, err := core.PredictPasses(ctx, pred, station, start, end, *step, *minElev)
		if err != nil {
			return err
		}
		for _, p := range passes {
			_ = cw.Write([]string{
				p.StationID,
				p.Rise.UTC().Format(time.RFC3339),
				p.Set.UTC().Format(time.RFC3339),
				formatFloat(p.MaxElevationDeg, 2),
				p.MaxElevationAt.UTC().Format(time.RFC3339),
				formatFloat(p.MinRange, 1),
			})
		}
		log.Debug(ctx, "predicted passes", logging.String("station_id", e.StationID), logging.Int("passes", len(passes)))
	}
	cw.Flush()
	return cw.Error()
}
