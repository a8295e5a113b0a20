package sinex

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/slr-reduction/internal/fixedcol"
	"github.com/signalsfoundry/slr-reduction/model"
)

func TestParseEccentricitiesWindows(t *testing.T) {
	table, err := ParseEccentricities(strings.NewReader(readTestdata(t, "ecc_xyz.snx")))
	if err != nil {
		t.Fatalf("ParseEccentricities: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", table.Len())
	}
	if got := table.Stations(); len(got) != 3 {
		t.Fatalf("Stations() = %v", got)
	}

	recs := table.records("78393402")
	if len(recs) != 2 {
		t.Fatalf("records for Graz = %d, want 2", len(recs))
	}
	if !recs[0].ValidFrom.Before(recs[1].ValidFrom) {
		t.Fatalf("records not ordered by start")
	}

	early, ok := table.Lookup("78393402", time.Date(2005, 6, 1, 0, 0, 0, 0, time.UTC))
	if !ok || early.Solution != "1" || early.Offset.X != 0 {
		t.Fatalf("2005 lookup = %+v, %v", early, ok)
	}
	late, ok := table.Lookup("78393402", time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC))
	if !ok || late.Solution != "2" {
		t.Fatalf("2018 lookup = %+v, %v", late, ok)
	}
	if late.Frame != model.FrameXYZ || late.Offset.X != -0.0405 || late.Offset.Y != 0.021 || late.Offset.Z != 0.0133 {
		t.Fatalf("offset = %v %+v", late.Frame, late.Offset)
	}
	if !late.ValidTo.IsZero() {
		t.Fatalf("open window decoded as %v", late.ValidTo)
	}
}

func TestEccentricityLookupRespectsInterval(t *testing.T) {
	table, err := ParseEccentricities(strings.NewReader(readTestdata(t, "ecc_xyz.snx")))
	if err != nil {
		t.Fatalf("ParseEccentricities: %v", err)
	}
	// 70900509 was only valid until the end of 1999.
	if _, ok := table.Lookup("70900509", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("expected no record outside validity window")
	}
	if _, ok := table.Lookup("70900509", time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)); !ok {
		t.Fatalf("expected record at inclusive window end")
	}
	if _, ok := table.Lookup("78393402", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("expected no record before first window")
	}
	if _, ok := table.Lookup("00000000", time.Now()); ok {
		t.Fatalf("expected no record for unknown station")
	}
}

func TestParseEccentricitiesUNE(t *testing.T) {
	table, err := ParseEccentricities(strings.NewReader(readTestdata(t, "ecc_une.snx")))
	if err != nil {
		t.Fatalf("ParseEccentricities: %v", err)
	}
	rec, ok := table.Lookup("78393402", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatalf("missing UNE record")
	}
	if rec.Frame != model.FrameENU {
		t.Fatalf("frame = %v, want ENU", rec.Frame)
	}
	// up=1.5 is stored as the third ENU component.
	if rec.Offset.X != 0 || rec.Offset.Y != 0 || rec.Offset.Z != 1.5 {
		t.Fatalf("ENU offset = %+v", rec.Offset)
	}
}

func TestParseEccentricitiesErrors(t *testing.T) {
	data := readTestdata(t, "ecc_xyz.snx")

	if _, err := ParseEccentricities(strings.NewReader(strings.Replace(data, "-SITE/ECCENTRICITY\n", "", 1))); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("missing terminator error = %v", err)
	}

	bad := strings.Replace(data, "96:001:00000", "96:000:00000", 1)
	_, err := ParseEccentricities(strings.NewReader(bad))
	var fpe *fixedcol.FieldParseError
	if !errors.As(err, &fpe) || fpe.Field != "start" {
		t.Fatalf("bad epoch error = %v, want field error on start", err)
	}

	badRef := strings.Replace(data, "XYZ   0.0012", "NEU   0.0012", 1)
	if _, err := ParseEccentricities(strings.NewReader(badRef)); !errors.As(err, &fpe) || fpe.Field != "ref" {
		t.Fatalf("bad ref error = %v, want field error on ref", err)
	}
}
