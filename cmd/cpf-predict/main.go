// Command cpf-predict propagates a two-line element set with SGP4 and
// writes the samples as an ILRS consolidated prediction file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/cpf"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/internal/observability"
)

func main() {
	log := logging.NewFromEnv()
	ctx, runID := logging.EnsureRunID(context.Background())
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("cpf-predict").WithRun(runID, "predict"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, log)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	os.Exit(code)
}

type options struct {
	tlePath  string
	target   string
	cospar   string
	sic      string
	source   string
	version  int
	sequence int
	subDaily int
	start    string
	duration time.Duration
	step     time.Duration
	out      string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) int {
	var opts options
	fs := flag.NewFlagSet("cpf-predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.tlePath, "tle", "", "file with a two-line element set, optionally preceded by a name line")
	fs.StringVar(&opts.target, "target", "", "target name for H2; defaults to the TLE name line")
	fs.StringVar(&opts.cospar, "cospar", "", "COSPAR id for H2")
	fs.StringVar(&opts.sic, "sic", "", "SIC for H2")
	fs.StringVar(&opts.source, "source", "SGP", "three-character ephemeris source")
	fs.IntVar(&opts.version, "version", 2, "CPF format version (1 or 2)")
	fs.IntVar(&opts.sequence, "sequence", -1, "ephemeris sequence; defaults to the start day of year (v2) or 5000+day (v1)")
	fs.IntVar(&opts.subDaily, "sub-daily", 0, "sub-daily sequence (v2)")
	fs.StringVar(&opts.start, "start", "", "first epoch, RFC 3339; defaults to the TLE epoch rounded down to the minute")
	fs.DurationVar(&opts.duration, "duration", 24*time.Hour, "prediction span")
	fs.DurationVar(&opts.step, "step", time.Minute, "sample interval")
	fs.StringVar(&opts.out, "out", "", "output file; stdout when empty")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.tlePath == "" {
		fmt.Fprintln(stderr, "-tle is required")
		return 2
	}

	if err := predict(ctx, opts, stdout, log); err != nil {
		log.Error(ctx, "cpf-predict failed", logging.Err(err))
		return 1
	}
	return 0
}

func predict(ctx context.Context, opts options, stdout io.Writer, log logging.Logger) error {
	name, line1, line2, err := readTLE(opts.tlePath)
	if err != nil {
		return err
	}
	pred, err := core.NewSGP4Predictor(line1, line2)
	if err != nil {
		return err
	}

	start := pred.Epoch().Truncate(time.Minute)
	if opts.start != "" {
		if start, err = time.Parse(time.RFC3339, opts.start); err != nil {
			return fmt.Errorf("-start: %w", err)
		}
	}
	end := start.Add(opts.duration)

	target := opts.target
	if target == "" {
		target = strings.ToLower(strings.ReplaceAll(name, " ", ""))
	}
	if len(target) > 10 {
		target = target[:10]
	}
	h := cpf.Header{
		Version:  opts.version,
		Source:   opts.source,
		Produced: time.Now().UTC(),
		Sequence: opts.sequence,
		SubDaily: opts.subDaily,
		Target:   target,
		COSPAR:   opts.cospar,
		SIC:      opts.sic,
		NORAD:    pred.NORAD(),
		Start:    start.UTC(),
		End:      end.UTC(),
		Step:     opts.step,
	}
	if h.Sequence < 0 {
		h.Sequence = start.UTC().YearDay()
		if h.Version == 1 {
			h.Sequence += 5000
		}
	}
	// Fail on the header before spending time on propagation.
	if err := h.Validate(); err != nil {
		return err
	}

	samples, err := core.SampleEphemeris(ctx, pred, h.Start, h.End, h.Step)
	if err != nil {
		return err
	}

	w := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := cpf.Write(w, h, samples); err != nil {
		return err
	}
	log.Info(ctx, "wrote prediction",
		logging.String("target", h.Target),
		logging.String("norad", h.NORAD),
		logging.Int("samples", len(samples)),
	)
	return nil
}

func readTLE(path string) (name, line1, line2 string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()
	return core.ReadTLE(f)
}
