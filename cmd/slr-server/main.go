// Command slr-server serves station reduction and range extraction over
// gRPC, with Prometheus metrics on a side HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/slr-reduction/internal/config"
	"github.com/signalsfoundry/slr-reduction/internal/logging"
	"github.com/signalsfoundry/slr-reduction/internal/observability"
	"github.com/signalsfoundry/slr-reduction/internal/rpc"
	"github.com/signalsfoundry/slr-reduction/kb"
)

func main() {
	log := logging.NewFromEnv()
	ctx, runID := logging.EnsureRunID(context.Background())

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error(ctx, "invalid environment configuration", logging.Err(err))
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	cfg.RegisterServerFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(2)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("slr-server").WithRun(runID, "serve"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves on lis until ctx is cancelled. SIGHUP reloads the station
// files named in cfg.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := observability.NewPipelineCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	catalog := kb.NewStationCatalog()
	unsubscribe := catalog.Subscribe(func(ev kb.Event) {
		log.Info(ctx, "station catalog updated",
			logging.String("event", ev.Type.String()),
			logging.String("source", ev.Source),
			logging.Int("stations", ev.Stations),
			logging.Int("records", ev.Records),
		)
		switch ev.Type {
		case kb.EventCatalogLoaded:
			collector.SetCatalogCounts(ev.Stations, -1)
		case kb.EventEccentricitiesLoaded:
			collector.SetCatalogCounts(-1, ev.Records)
		}
	})
	defer unsubscribe()
	loadCatalog(ctx, log, catalog, cfg)

	metricsSrv := serveMetrics(ctx, cfg.MetricsAddr, collector, log)

	healthSrv := health.NewServer()
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			rpc.RequestIDUnaryServerInterceptor(log),
			rpc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	rpc.RegisterReductionServiceServer(server, rpc.NewService(catalog,
		rpc.WithDefaultPolicy(cfg.EccPolicy()),
		rpc.WithMetrics(collector),
		rpc.WithLogger(log),
	))
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(rpc.ReductionServiceName, healthpb.HealthCheckResponse_SERVING)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting gRPC server", logging.String("addr", lis.Addr().String()))
		serveErr <- server.Serve(lis)
	}()

	var result error
loop:
	for {
		select {
		case <-hup:
			loadCatalog(ctx, log, catalog, cfg)
		case err := <-serveErr:
			if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				result = err
			}
			break loop
		case <-ctx.Done():
			log.Info(ctx, "shutting down gRPC server")
			healthSrv.Shutdown()
			server.GracefulStop()
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

// loadCatalog keeps the previous catalog when a file fails to parse.
func loadCatalog(ctx context.Context, log logging.Logger, catalog *kb.StationCatalog, cfg config.Config) {
	if cfg.StationFile == "" {
		log.Warn(ctx, "no station file configured; reductions will fail until one is loaded")
		return
	}
	if err := catalog.LoadFiles(cfg.StationFile, cfg.EccentricityFile); err != nil {
		log.Error(ctx, "failed to load station files",
			logging.String("stations", cfg.StationFile),
			logging.String("eccentricities", cfg.EccentricityFile),
			logging.Err(err),
		)
	}
}

func serveMetrics(ctx context.Context, addr string, collector *observability.PipelineCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
