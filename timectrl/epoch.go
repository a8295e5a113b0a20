package timectrl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedEpoch is returned when a SINEX epoch string cannot be decoded.
var ErrMalformedEpoch = errors.New("malformed epoch")

// OpenEpoch is the SINEX placeholder for an unbounded validity limit.
const OpenEpoch = "00:000:00000"

// centuryPivot splits two-digit years: values above it are 19xx.
const centuryPivot = 50

// DecodeEpoch converts a SINEX "YY:DDD:SSSSS" epoch into a UTC timestamp.
// Two-digit years above 50 are in the 1900s, the rest in the 2000s; a
// four-digit year field is taken as is. Day of year is 1-based.
func DecodeEpoch(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q: want 3 colon-separated fields", ErrMalformedEpoch, s)
	}

	var fields [3]int
	for i, p := range parts {
		v, err := parseUnsigned(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: field %d: %v", ErrMalformedEpoch, s, i+1, err)
		}
		fields[i] = v
	}

	year := fields[0]
	switch len(strings.TrimSpace(parts[0])) {
	case 1, 2:
		if year > centuryPivot {
			year += 1900
		} else {
			year += 2000
		}
	case 4:
	default:
		return time.Time{}, fmt.Errorf("%w: %q: year field must have 2 or 4 digits", ErrMalformedEpoch, s)
	}

	doy := fields[1]
	if doy < 1 || doy > 366 {
		return time.Time{}, fmt.Errorf("%w: %q: day of year %d out of range", ErrMalformedEpoch, s, doy)
	}

	base := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, doy-1).Add(time.Duration(fields[2]) * time.Second), nil
}

// EncodeEpoch renders t as a SINEX "YY:DDD:SSSSS" epoch. Sub-second
// precision is truncated.
func EncodeEpoch(t time.Time) string {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	sod := int(t.Sub(midnight) / time.Second)
	return fmt.Sprintf("%02d:%03d:%05d", t.Year()%100, t.YearDay(), sod)
}

// IsOpenEpoch reports whether s is the all-zero placeholder used for
// open-ended validity windows.
func IsOpenEpoch(s string) bool {
	return strings.TrimSpace(s) == OpenEpoch
}

func parseUnsigned(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a non-negative integer", s)
		}
	}
	return strconv.Atoi(s)
}
