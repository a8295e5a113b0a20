package model

import "time"

// RecordKind classifies a parsed tracking record.
type RecordKind int

const (
	RecordSessionHeader RecordKind = iota
	RecordRange
	RecordMeteo
	RecordConfig
)

func (k RecordKind) String() string {
	switch k {
	case RecordSessionHeader:
		return "header"
	case RecordRange:
		return "range"
	case RecordMeteo:
		return "meteo"
	case RecordConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TrackingRecord is one decoded line of a CRD stream. The concrete types
// are SessionHeader, RangeSample, MeteoSample and ConfigSample.
type TrackingRecord interface {
	Kind() RecordKind
}

// EpochEvent says which instant of a two-way ranging pulse a recorded
// time of day refers to.
type EpochEvent int

const (
	EpochEventBounce   EpochEvent = 1 // spacecraft bounce time
	EpochEventTransmit EpochEvent = 2 // ground transmit time
)

// Known reports whether the reduction knows how to derive timing for e.
func (e EpochEvent) Known() bool {
	return e == EpochEventBounce || e == EpochEventTransmit
}

// SessionHeader carries the calendar day the times of day refer to.
type SessionHeader struct {
	Year  int
	Month int
	Day   int
}

func (SessionHeader) Kind() RecordKind { return RecordSessionHeader }

// Date returns the UTC midnight the header refers to.
func (h SessionHeader) Date() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
}

// RangeSample is a full-rate or normal-point range record.
type RangeSample struct {
	LineNo         int
	TimeOfDay      float64 // seconds past midnight
	TimeOfFlight   float64 // seconds, two-way
	EpochEvent     EpochEvent
	SystemConfigID string
	NormalPoint    bool
}

func (RangeSample) Kind() RecordKind { return RecordRange }

// MeteoSample is a surface meteorological record.
type MeteoSample struct {
	TimeOfDay   float64 // seconds past midnight
	Pressure    float64 // mbar
	Temperature float64 // kelvin
	Humidity    float64 // percent
}

func (MeteoSample) Kind() RecordKind { return RecordMeteo }

// ConfigSample is the system configuration record; only the laser
// wavelength is retained.
type ConfigSample struct {
	SystemConfigID string
	WavelengthNM   float64
}

func (ConfigSample) Kind() RecordKind { return RecordConfig }

// RangeMeasurement is a calibrated two-way range keyed by receive time.
// ReceiveTime is always TransmitTime plus the time of flight.
type RangeMeasurement struct {
	StationID    string
	TransmitTime time.Time
	BounceTime   time.Time
	ReceiveTime  time.Time
	Range        float64 // metres, one way

	WavelengthUM float64
	PressureMbar float64
	TemperatureK float64
	Humidity     float64 // fraction in [0,1]
}
