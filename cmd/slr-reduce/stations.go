package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/config"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/kb"
	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

func runStations(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return usageErr("%v", err)
	}
	fs := flag.NewFlagSet("stations", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	epochFlag := fs.String("epoch", "", "reduction epoch, RFC 3339 or YY:DDD:SSSSS")
	ids := fs.String("ids", "", "comma-separated station ids; all stations when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageErr("%v", err)
	}
	if cfg.StationFile == "" {
		return usageErr("-stations is required")
	}
	at, err := parseEpoch(*epochFlag)
	if err != nil {
		return usageErr("-epoch: %v", err)
	}

	catalog := kb.NewStationCatalog()
	if err := catalog.LoadFiles(cfg.StationFile, cfg.EccentricityFile); err != nil {
		return err
	}

	var entries []model.StationCatalogEntry
	if *ids == "" {
		entries = catalog.Entries()
	} else {
		for _, id := range strings.Split(*ids, ",") {
			e, err := catalog.EntryByStationID(strings.TrimSpace(id))
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}

	reducer := core.NewStationPositionReducer(core.WGS84{},
		core.WithEccentricityPolicy(cfg.EccPolicy()),
		core.WithReducerLogger(log),
	)
	positions, err := reducer.ReduceAll(ctx, entries, catalog, at)
	if err != nil {
		return err
	}
	log.Info(ctx, "reduced stations", logging.Int("count", len(positions)), logging.Time("epoch", at))
	return writePositions(stdout, positions)
}

// parseEpoch accepts RFC 3339 timestamps, plain dates and SINEX epochs.
func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing value")
	}
	if strings.Count(s, ":") == 2 && !strings.Contains(s, "T") {
		return timectrl.DecodeEpoch(s)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func writePositions(w io.Writer, positions []model.ReducedStationPosition) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"station_id", "station", "epoch", "x_m", "y_m", "z_m", "latitude_deg", "longitude_deg", "altitude_m"})
	for _, p := range positions {
		_ = cw.Write([]string{
			p.StationID,
			p.Key.String(),
			p.Epoch.UTC().Format(time.RFC3339),
			formatFloat(p.Position.X, 4),
			formatFloat(p.Position.Y, 4),
			formatFloat(p.Position.Z, 4),
			formatFloat(p.Latitude, 8),
			formatFloat(p.Longitude, 8),
			formatFloat(p.Altitude, 4),
		})
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
