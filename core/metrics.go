package core

import "time"

// MetricsRecorder receives pipeline counters. internal/observability
// provides the Prometheus implementation.
type MetricsRecorder interface {
	RecordsParsed(kind string, n int)
	ParseFailed(parser string)
	MeasurementsEmitted(stationID string, n int)
	EpochEventWarning(stationID string)
	EccentricityFallback(stationID string)
	ObserveReduction(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordsParsed(string, int)       {}
func (noopMetrics) ParseFailed(string)              {}
func (noopMetrics) MeasurementsEmitted(string, int) {}
func (noopMetrics) EpochEventWarning(string)        {}
func (noopMetrics) EccentricityFallback(string)     {}
func (noopMetrics) ObserveReduction(time.Duration)  {}
