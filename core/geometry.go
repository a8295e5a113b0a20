package core

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/model"
)

// rotation returns the matrix whose rows are the frame's east, north and
// up axes, i.e. the geocentric-to-local rotation.
func rotation(f model.GroundFrame) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		f.East.X, f.East.Y, f.East.Z,
		f.North.X, f.North.Y, f.North.Z,
		f.Up.X, f.Up.Y, f.Up.Z,
	})
}

func mulVec(m mat.Matrix, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// ENUToECEF rotates a local east/north/up offset into geocentric axes.
// The result is a displacement, not a position.
func ENUToECEF(f model.GroundFrame, enu r3.Vec) r3.Vec {
	return mulVec(rotation(f).T(), enu)
}

// ECEFToENU expresses a geocentric position relative to the frame origin
// in local east/north/up components.
func ECEFToENU(f model.GroundFrame, ecef r3.Vec) r3.Vec {
	return mulVec(rotation(f), r3.Sub(ecef, f.Origin))
}

// LookAngles is the direction and distance of a target seen from a station.
type LookAngles struct {
	AzimuthDeg   float64 // clockwise from north, [0, 360)
	ElevationDeg float64 // above the local horizon
	Range        float64 // metres
}

// Look returns the look angles of target from the frame origin.
func Look(f model.GroundFrame, target r3.Vec) LookAngles {
	enu := ECEFToENU(f, target)
	rng := r3.Norm(enu)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(clamp(enu.Z/rng, -1, 1)) * 180 / math.Pi
	az := math.Atan2(enu.X, enu.Y) * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	return LookAngles{AzimuthDeg: az, ElevationDeg: el, Range: rng}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
