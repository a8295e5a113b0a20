package model

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StationKey identifies a station solution in a SINEX file by its site
// code and placement (point) tag.
type StationKey struct {
	Code         int
	PlacementTag byte
}

// String renders the key the way SINEX lays it out, e.g. "7090 A".
func (k StationKey) String() string {
	tag := k.PlacementTag
	if tag == 0 {
		tag = ' '
	}
	return fmt.Sprintf("%04d %c", k.Code, tag)
}

// Geodetic is a position on the reference ellipsoid. Angles are degrees,
// altitude is metres above the ellipsoid.
type Geodetic struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// SiteInfo is one row of the SINEX SITE/ID block.
type SiteInfo struct {
	Key         StationKey
	DOMES       string
	Technique   byte
	Description string
	StationID   string // 8-character CDP-SOD identifier

	// Approximate holds the coarse geodetic position published alongside
	// the site. HasApproximate is false when the columns were blank.
	Approximate    Geodetic
	HasApproximate bool
}

// StationCatalogEntry is a reference coordinate and secular velocity for
// one station, as estimated in a SINEX solution.
type StationCatalogEntry struct {
	Key            StationKey
	StationID      string
	Solution       int
	ReferenceEpoch time.Time

	Position r3.Vec // metres
	Velocity r3.Vec // metres per year

	PositionSigma r3.Vec
	VelocitySigma r3.Vec
}

// FrameTag names the axes an eccentricity offset is expressed in.
type FrameTag int

const (
	FrameXYZ FrameTag = iota // geocentric Cartesian
	FrameENU                 // local east/north/up
)

func (f FrameTag) String() string {
	switch f {
	case FrameXYZ:
		return "XYZ"
	case FrameENU:
		return "ENU"
	default:
		return fmt.Sprintf("FrameTag(%d)", int(f))
	}
}

// EccentricityRecord is the offset between a station's marker and its
// instrument reference point over a validity window. A zero ValidFrom or
// ValidTo means the window is open on that side.
type EccentricityRecord struct {
	StationID string
	Key       StationKey
	Solution  string
	ValidFrom time.Time
	ValidTo   time.Time
	Frame     FrameTag
	Offset    r3.Vec // metres, in Frame axes
}

// Contains reports whether epoch falls inside the record's validity window.
// Both bounds are inclusive.
func (e EccentricityRecord) Contains(epoch time.Time) bool {
	if !e.ValidFrom.IsZero() && epoch.Before(e.ValidFrom) {
		return false
	}
	if !e.ValidTo.IsZero() && epoch.After(e.ValidTo) {
		return false
	}
	return true
}

// GroundFrame is a topocentric east/north/up frame anchored at a station.
// The axes are unit vectors in the geocentric frame.
type GroundFrame struct {
	Name   string
	Origin r3.Vec
	East   r3.Vec
	North  r3.Vec
	Up     r3.Vec
}

// ReducedStationPosition is a station position propagated to one epoch.
// It is recomputed for every epoch and never shared across epochs.
type ReducedStationPosition struct {
	StationID string
	Key       StationKey
	Epoch     time.Time
	Position  r3.Vec
	Geodetic
	Frame GroundFrame
}
