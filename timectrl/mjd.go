package timectrl

import (
	"math"
	"time"
)

// mjdEpoch is MJD 0.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// MJD splits t into a Modified Julian Day number and seconds of that day.
// Leap seconds are ignored.
func MJD(t time.Time) (day int, secondOfDay float64) {
	d := t.UTC().Sub(mjdEpoch)
	day = int(d / (24 * time.Hour))
	rem := d - time.Duration(day)*24*time.Hour
	return day, rem.Seconds()
}

// FromMJD is the inverse of MJD.
func FromMJD(day int, secondOfDay float64) time.Time {
	return mjdEpoch.AddDate(0, 0, day).Add(Seconds(secondOfDay))
}

// Seconds converts fractional seconds to a Duration, rounding to the
// nearest nanosecond.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Midnight returns the UTC start of t's day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
