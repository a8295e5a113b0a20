package archive

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/slr-reduction/internal/cpf"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/model"
)

// FetchEphemeris downloads every prediction of q.Satellite for the start
// day and merges the samples inside [q.Start, q.End]. When two
// predictions share an epoch the one whose data starts later wins, ties
// going to the higher dataset id. Datasets that fail
// to download are skipped; ErrUnavailable is returned only if all fail.
func FetchEphemeris(ctx context.Context, src Source, q Query, log logging.Logger) ([]model.EphemerisSample, error) {
	if log == nil {
		log = logging.Noop()
	}
	q.Type = DataCPF
	datasets, err := src.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	datasets = slices.Clone(datasets)
	slices.SortStableFunc(datasets, func(a, b Dataset) int {
		if c := a.StartData.Compare(b.StartData); c != 0 {
			return c
		}
		return a.ID - b.ID
	})

	byEpoch := make(map[time.Time]model.EphemerisSample)
	failed := 0
	for _, d := range datasets {
		lines, err := src.Download(ctx, DataCPF, d.ID)
		if err != nil {
			failed++
			log.Warn(ctx, "skipping prediction", logging.Int("id", d.ID), logging.Err(err))
			continue
		}
		samples, err := cpf.ReadSamples(Reader(lines), q.Start, q.End)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", d.ID, err)
		}
		for _, s := range samples {
			byEpoch[s.Epoch] = s
		}
	}
	if len(datasets) > 0 && failed == len(datasets) {
		return nil, fmt.Errorf("%w: all %d predictions failed to download", ErrUnavailable, failed)
	}

	out := make([]model.EphemerisSample, 0, len(byEpoch))
	for _, s := range byEpoch {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b model.EphemerisSample) int { return a.Epoch.Compare(b.Epoch) })
	return out, nil
}
