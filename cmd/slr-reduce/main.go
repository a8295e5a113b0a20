// Command slr-reduce reduces SINEX station coordinates to an epoch and
// extracts calibrated ranges from CRD files, writing CSV to stdout.
//
// Usage:
//
//	slr-reduce stations -stations SLRF.snx -eccentricities ecc.snx -epoch 2019-06-01T00:00:00Z
//	slr-reduce ranges [-legacy -station-id 78393402] FILE...
//	slr-reduce fetch -type npt -satellite 7603901 -start 2019-06-01 -end 2019-06-02
//	slr-reduce passes -stations SLRF.snx -tle lageos1.tle -start 2019-06-01 -min-elevation 20
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/internal/observability"
)

const usage = `usage: slr-reduce <command> [flags]

commands:
  stations   reduce catalog stations to an epoch
  ranges     extract range measurements from CRD files
  fetch      download tracking data or predictions from the archive
  passes     predict satellite passes over catalog stations
`

func main() {
	log := logging.NewFromEnv()
	ctx, runID := logging.EnsureRunID(context.Background())
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := ""
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	tracing := observability.TracingConfigFromEnv("slr-reduce").WithRun(runID, command)
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, log)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, log logging.Logger) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "stations":
		err = runStations(ctx, args[1:], stdout, stderr, log)
	case "ranges":
		err = runRanges(ctx, args[1:], stdout, stderr, log)
	case "fetch":
		err = runFetch(ctx, args[1:], stdout, stderr, log)
	case "passes":
		err = runPasses(ctx, args[1:], stdout, stderr, log)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		log.Error(ctx, "slr-reduce failed", logging.String("command", args[0]), logging.Err(err))
		return 1
	}
}

var errUsage = errors.New("usage error")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
