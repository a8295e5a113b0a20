package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PipelineCollector bundles Prometheus metrics for the reduction pipeline
// and the RPC surface. It satisfies core.MetricsRecorder.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	ParsedRecords         *prometheus.CounterVec
	ParseFailures         *prometheus.CounterVec
	Measurements          *prometheus.CounterVec
	EpochEventWarnings    *prometheus.CounterVec
	EccentricityFallbacks *prometheus.CounterVec
	ReductionDuration     prometheus.Histogram

	CatalogStations     prometheus.Gauge
	EccentricityRecords prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewPipelineCollector registers the metrics against reg, defaulting to
// the global Prometheus registry when nil. Registering twice against the
// same registry returns the existing collectors.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &PipelineCollector{gatherer: gatherer}
	var err error

	counters := []struct {
		dst    **prometheus.CounterVec
		name   string
		help   string
		labels []string
	}{
		{&c.ParsedRecords, "slr_records_parsed_total", "Tracking records decoded, labeled by record kind.", []string{"kind"}},
		{&c.ParseFailures, "slr_parse_failures_total", "Inputs rejected by a parser, labeled by parser.", []string{"parser"}},
		{&c.Measurements, "slr_measurements_total", "Range measurements emitted, labeled by station.", []string{"station_id"}},
		{&c.EpochEventWarnings, "slr_epoch_event_warnings_total", "Range records with an unrecognized epoch event.", []string{"station_id"}},
		{&c.EccentricityFallbacks, "slr_eccentricity_fallbacks_total", "Reductions that applied a zero eccentricity.", []string{"station_id"}},
		{&c.RPCRequests, "slr_rpc_requests_total", "Handled RPCs, labeled by service, method, and gRPC status code.", []string{"service", "method", "code"}},
	}
	for _, def := range counters {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.name, Help: def.help}, def.labels)
		if *def.dst, err = registerCounterVec(reg, vec, def.name); err != nil {
			return nil, err
		}
	}

	c.ReductionDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slr_reduction_duration_seconds",
		Help:    "Time to reduce one station position.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "slr_reduction_duration_seconds")
	if err != nil {
		return nil, err
	}

	c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slr_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "slr_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	if c.CatalogStations, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slr_catalog_stations",
		Help: "Stations with a current solution in the loaded catalog.",
	}), "slr_catalog_stations"); err != nil {
		return nil, err
	}
	if c.EccentricityRecords, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slr_eccentricity_records",
		Help: "Eccentricity windows in the loaded table.",
	}), "slr_eccentricity_records"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PipelineCollector) RecordsParsed(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ParsedRecords.WithLabelValues(kind).Add(float64(n))
}

func (c *PipelineCollector) ParseFailed(parser string) {
	if c == nil {
		return
	}
	c.ParseFailures.WithLabelValues(parser).Inc()
}

func (c *PipelineCollector) MeasurementsEmitted(stationID string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Measurements.WithLabelValues(stationID).Add(float64(n))
}

func (c *PipelineCollector) EpochEventWarning(stationID string) {
	if c == nil {
		return
	}
	c.EpochEventWarnings.WithLabelValues(stationID).Inc()
}

func (c *PipelineCollector) EccentricityFallback(stationID string) {
	if c == nil {
		return
	}
	c.EccentricityFallbacks.WithLabelValues(stationID).Inc()
}

func (c *PipelineCollector) ObserveReduction(d time.Duration) {
	if c == nil {
		return
	}
	c.ReductionDuration.Observe(d.Seconds())
}

// SetCatalogCounts updates the catalog gauges. A negative value leaves the
// gauge unchanged.
func (c *PipelineCollector) SetCatalogCounts(stations, eccentricities int) {
	if c == nil {
		return
	}
	if stations >= 0 {
		c.CatalogStations.Set(float64(stations))
	}
	if eccentricities >= 0 {
		c.EccentricityRecords.Set(float64(eccentricities))
	}
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PipelineCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
