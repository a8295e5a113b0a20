package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/model"
)

// Geodesy converts geocentric positions to ellipsoidal coordinates and
// builds station-centred frames. Implementations must be safe for
// concurrent use.
type Geodesy interface {
	ToGeodetic(ecef r3.Vec, epoch time.Time) (model.Geodetic, error)
	GroundFrame(g model.Geodetic, name string) (model.GroundFrame, error)
}

// WGS84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
	wgs84B  = wgs84A * (1 - wgs84F)
)

// ErrDegeneratePosition is returned for positions too close to the
// geocentre to have a meaningful geodetic latitude.
var ErrDegeneratePosition = errors.New("degenerate geocentric position")

// WGS84 is the default Geodesy. The terrestrial frame is treated as fixed,
// so the epoch argument does not change the result. It is stateless.
type WGS84 struct{}

// ToGeodetic converts an Earth-fixed position in metres. The heavy lifting
// is delegated to go-satellite, which works in kilometres; a zero sidereal
// angle makes its inertial input Earth-fixed.
func (WGS84) ToGeodetic(ecef r3.Vec, _ time.Time) (model.Geodetic, error) {
	if r3.Norm(ecef) < 1 {
		return model.Geodetic{}, fmt.Errorf("%w: %+v", ErrDegeneratePosition, ecef)
	}
	p := math.Hypot(ecef.X, ecef.Y)
	if p < 1e-3 {
		// go-satellite divides by cos(latitude); handle the polar axis here.
		lat := 90.0
		if ecef.Z < 0 {
			lat = -90
		}
		return model.Geodetic{Latitude: lat, Longitude: 0, Altitude: math.Abs(ecef.Z) - wgs84B}, nil
	}

	altKm, _, ll := satellite.ECIToLLA(satellite.Vector3{X: ecef.X / 1000, Y: ecef.Y / 1000, Z: ecef.Z / 1000}, 0)
	return model.Geodetic{
		Latitude:  ll.Latitude * 180 / math.Pi,
		Longitude: wrapLongitude(ll.Longitude * 180 / math.Pi),
		Altitude:  altKm * 1000,
	}, nil
}

// GroundFrame returns the east/north/up frame tangent to the ellipsoid at g.
func (WGS84) GroundFrame(g model.Geodetic, name string) (model.GroundFrame, error) {
	if math.IsNaN(g.Latitude) || math.Abs(g.Latitude) > 90 {
		return model.GroundFrame{}, fmt.Errorf("ground frame %s: latitude %v out of range", name, g.Latitude)
	}
	lat := g.Latitude * math.Pi / 180
	lon := g.Longitude * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	origin := r3.Vec{
		X: (n + g.Altitude) * cosLat * cosLon,
		Y: (n + g.Altitude) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + g.Altitude) * sinLat,
	}
	return model.GroundFrame{
		Name:   name,
		Origin: origin,
		East:   r3.Vec{X: -sinLon, Y: cosLon, Z: 0},
		North:  r3.Vec{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat},
		Up:     r3.Vec{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat},
	}, nil
}

func wrapLongitude(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg <= -180 {
		deg += 360
	}
	return deg
}
