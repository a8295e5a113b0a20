package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

// ErrInvalidTLE is returned for two-line element sets that fail the
// layout or checksum checks.
var ErrInvalidTLE = errors.New("invalid TLE")

// EphemerisPredictor yields Earth-fixed satellite positions in metres.
type EphemerisPredictor interface {
	PositionAt(t time.Time) (r3.Vec, error)
}

// SGP4Predictor propagates a TLE with SGP4 (WGS72 constants) and rotates
// the result into the Earth-fixed frame with GMST.
type SGP4Predictor struct {
	sat   satellite.Satellite
	norad string
	epoch time.Time
}

// NewSGP4Predictor validates and loads a TLE.
func NewSGP4Predictor(line1, line2 string) (*SGP4Predictor, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := checkTLELine(line1, '1'); err != nil {
		return nil, err
	}
	if err := checkTLELine(line2, '2'); err != nil {
		return nil, err
	}
	norad := strings.TrimSpace(line1[2:7])
	if norad != strings.TrimSpace(line2[2:7]) {
		return nil, fmt.Errorf("%w: catalog numbers differ (%q, %q)", ErrInvalidTLE, line1[2:7], line2[2:7])
	}
	epoch, err := tleEpoch(line1[18:32])
	if err != nil {
		return nil, err
	}
	// The propagator aborts the process on undecodable numbers, so every
	// element it reads is checked here first.
	for _, f := range [][2]int{{8, 16}, {17, 25}, {34, 42}, {43, 51}, {52, 63}} {
		if _, err := strconv.ParseFloat(strings.TrimSpace(line2[f[0]:f[1]]), 64); err != nil {
			return nil, fmt.Errorf("%w: line 2 columns %d-%d: %v", ErrInvalidTLE, f[0]+1, f[1], err)
		}
	}
	if _, err := strconv.ParseFloat("."+strings.TrimSpace(line2[26:33]), 64); err != nil {
		return nil, fmt.Errorf("%w: eccentricity: %v", ErrInvalidTLE, err)
	}

	return &SGP4Predictor{
		sat:   satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		norad: norad,
		epoch: epoch,
	}, nil
}

// NORAD returns the catalog number of the loaded element set.
func (p *SGP4Predictor) NORAD() string { return p.norad }

// Epoch returns the element set epoch.
func (p *SGP4Predictor) Epoch() time.Time { return p.epoch }

// PositionAt propagates to t. go-satellite works in whole seconds and
// kilometres; the sub-second part is applied along the velocity.
func (p *SGP4Predictor) PositionAt(t time.Time) (r3.Vec, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	frac := float64(t.Nanosecond()) / 1e9

	pos, vel := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	pos.X += vel.X * frac
	pos.Y += vel.Y * frac
	pos.Z += vel.Z * frac

	jd := satellite.JDay(year, int(month), day, hour, min, sec) + frac/86400
	ecef := satellite.ECIToECEF(pos, satellite.ThetaG_JD(jd))

	const kmToM = 1000.0
	out := r3.Vec{X: ecef.X * kmToM, Y: ecef.Y * kmToM, Z: ecef.Z * kmToM}
	if math.IsNaN(out.X) || math.IsNaN(out.Y) || math.IsNaN(out.Z) || r3.Norm(out) == 0 {
		return r3.Vec{}, fmt.Errorf("sgp4: propagation failed for %s at %s", p.norad, t.Format(time.RFC3339))
	}
	return out, nil
}

// SampleEphemeris evaluates pred on the inclusive grid [start, end].
func SampleEphemeris(ctx context.Context, pred EphemerisPredictor, start, end time.Time, step time.Duration) ([]model.EphemerisSample, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.SampleEphemeris")
	defer span.End()
	span.SetAttributes(attribute.String("step", step.String()))

	var out []model.EphemerisSample
	tc := timectrl.NewTimeController(start, step)
	tc.AddListener(func(t time.Time) error {
		pos, err := pred.PositionAt(t)
		if err != nil {
			return err
		}
		out = append(out, model.EphemerisSample{Epoch: t, Position: pos})
		return nil
	})
	if _, err := tc.Run(ctx, end); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("samples", len(out)))
	return out, nil
}

// ReadTLE reads a two-line element set, optionally preceded by a name
// line. Blank lines are ignored.
func ReadTLE(r io.Reader) (name, line1, line2 string, err error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimRight(sc.Text(), " \r"); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", "", err
	}
	switch len(lines) {
	case 2:
		return "", lines[0], lines[1], nil
	case 3:
		return strings.TrimSpace(lines[0]), lines[1], lines[2], nil
	default:
		return "", "", "", fmt.Errorf("%w: want 2 or 3 non-empty lines, got %d", ErrInvalidTLE, len(lines))
	}
}

func checkTLELine(line string, num byte) error {
	if len(line) != 69 {
		return fmt.Errorf("%w: line %c has %d characters, want 69", ErrInvalidTLE, num, len(line))
	}
	if line[0] != num || line[1] != ' ' {
		return fmt.Errorf("%w: line %c does not start with %q", ErrInvalidTLE, num, string(num)+" ")
	}
	want := int(line[68] - '0')
	if want < 0 || want > 9 {
		return fmt.Errorf("%w: line %c checksum %q is not a digit", ErrInvalidTLE, num, line[68])
	}
	if got := tleChecksum(line[:68]); got != want {
		return fmt.Errorf("%w: line %c checksum %d, want %d", ErrInvalidTLE, num, want, got)
	}
	return nil
}

// tleChecksum sums digits, counting '-' as one, modulo 10.
func tleChecksum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// tleEpoch decodes YYDDD.DDDDDDDD with the usual 57 pivot.
func tleEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrInvalidTLE, s)
	}
	yy, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year: %v", ErrInvalidTLE, err)
	}
	days, err := strconv.ParseFloat(s[2:], 64)
	if err != nil || days < 1 || days >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, s[2:])
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(timectrl.Seconds((days - 1) * 86400)), nil
}
