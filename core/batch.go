package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

// TrackingSource is one CRD payload in a batch.
type TrackingSource struct {
	Name string
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a CRD file from disk.
func FileSource(path string) TrackingSource {
	return TrackingSource{
		Name: filepath.Base(path),
		Open: func(context.Context) (io.ReadCloser, error) { return os.Open(path) },
	}
}

// TrackingResult is the outcome for one source. Err is only set when the
// batch runs with KeepGoing.
type TrackingResult struct {
	Source       string
	Measurements []model.RangeMeasurement
	Warnings     []crd.Warning
	Err          error
}

// BatchOptions bounds a ProcessTracking run.
type BatchOptions struct {
	// Workers caps concurrent parses. Zero or less means one.
	Workers int
	// KeepGoing records per-source failures instead of aborting the batch.
	KeepGoing bool
}

// ProcessTracking parses and reduces each source on a bounded worker
// pool. Results keep the order of sources. Without KeepGoing the first
// failure cancels the remaining work and is returned.
func (b *MeasurementBuilder) ProcessTracking(ctx context.Context, sources []TrackingSource, opts BatchOptions) ([]TrackingResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	results := make([]TrackingResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			res, err := b.processOne(gctx, src)
			res.Source = src.Name
			if err != nil {
				b.metrics.ParseFailed("crd")
				b.log.Error(gctx, "tracking source failed", logging.String("source", src.Name), logging.Err(err))
				if !opts.KeepGoing {
					return fmt.Errorf("%s: %w", src.Name, err)
				}
				res.Err = err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *MeasurementBuilder) processOne(ctx context.Context, src TrackingSource) (TrackingResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.ProcessTracking.source")
	defer span.End()
	span.SetAttributes(attribute.String("source", src.Name))

	if err := ctx.Err(); err != nil {
		return TrackingResult{}, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		span.RecordError(err)
		return TrackingResult{}, err
	}
	defer rc.Close()

	file, err := b.parser.Parse(rc)
	if err != nil {
		span.RecordError(err)
		return TrackingResult{}, err
	}
	ms, ws := b.FromFile(ctx, file)
	span.SetAttributes(attribute.Int("measurements", len(ms)), attribute.Int("warnings", len(ws)))
	return TrackingResult{Measurements: ms, Warnings: ws}, nil
}
