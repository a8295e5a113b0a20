package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/slr-reduction/internal/logging"
)

const (
	stationsFixture = "../../internal/sinex/testdata/slrf_small.snx"
	eccFixture      = "../../internal/sinex/testdata/ecc_xyz.snx"
	crdFixture      = "../../internal/crd/testdata/graz_lageos1.npt"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, logging.Noop())
	return code, stdout.String(), stderr.String()
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v\n%s", err, s)
	}
	return rows
}

func TestStationsCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "stations",
		"-stations", stationsFixture,
		"-eccentricities", eccFixture,
		"-epoch", "19:152:00000",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header and 2 stations", len(rows))
	}
	if rows[0][0] != "station_id" || rows[1][0] != "70900513" || rows[2][0] != "78393402" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][2] != "2019-06-01T00:00:00Z" {
		t.Fatalf("epoch column = %q", rows[1][2])
	}
}

func TestStationsCommandStrictFailure(t *testing.T) {
	code, _, _ := runCLI(t, "stations",
		"-stations", stationsFixture,
		"-eccentricities", "../../internal/sinex/testdata/ecc_une.snx",
		"-epoch", "2019-06-01T00:00:00Z",
	)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	code, out, errOut := runCLI(t, "stations",
		"-stations", stationsFixture,
		"-eccentricities", "../../internal/sinex/testdata/ecc_une.snx",
		"-ecc-policy", "zero",
		"-ids", "70900513",
		"-epoch", "2019-06-01",
	)
	if code != 0 {
		t.Fatalf("zero policy exit code = %d, stderr: %s", code, errOut)
	}
	if rows := readCSV(t, out); len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"bogus"},
		{"stations", "-epoch", "2019-06-01"},
		{"stations", "-stations", stationsFixture, "-epoch", "yesterday"},
		{"ranges"},
		{"fetch", "-type", "sp3", "-satellite", "7603901"},
		{"fetch", "-type", "npt", "-start", "2019-06-01", "-end", "2019-06-02"},
	}
	for _, args := range tests {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Fatalf("run(%v) exit code = %d, want 2", args, code)
		}
	}
}

func TestRangesCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "ranges", crdFixture)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header and 4 measurements", len(rows))
	}
	if !strings.Contains(errOut, "line 17") {
		t.Fatalf("stderr should report the unknown epoch event, got %q", errOut)
	}
}

func TestRangesKeepGoing(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.npt")
	if err := os.WriteFile(bad, []byte("H4  1 2019 06 01 23 50 00\n11 86000.5 0.047 std1 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if code, _, _ := runCLI(t, "ranges", crdFixture, bad); code != 1 {
		t.Fatalf("fail-fast exit code = %d, want 1", code)
	}

	code, out, errOut := runCLI(t, "ranges", "-keep-going", crdFixture, bad)
	if code != 1 {
		t.Fatalf("keep-going exit code = %d, want 1", code)
	}
	if rows := readCSV(t, out); len(rows) != 5 {
		t.Fatalf("rows = %d, want the good file's 4 measurements", len(rows))
	}
	if !strings.Contains(errOut, "bad.npt") {
		t.Fatalf("stderr = %q, want the failed file named", errOut)
	}
}

func TestRangesLegacy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.npt")
	text := "H4  1 2019 06 01 23 50 00\n11 86000.5 0.047 std1 2\n11 86005.5 0.047 std1 0\n11 86010.5 0.047 std1 2\nH8\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, out, errOut := runCLI(t, "ranges", "-legacy", "-station-id", "78393402", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) != 3 || rows[1][0] != "78393402" {
		t.Fatalf("rows = %v", rows)
	}
	// The unknown epoch event is reported, not silently dropped.
	if !strings.Contains(errOut, "legacy.npt: line 3: unrecognized epoch event") {
		t.Fatalf("stderr = %q, want legacy warning", errOut)
	}
}

func TestFetchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("action") {
		case "data-query":
			if r.PostForm.Get("end_data_date") != "2019-06-02%" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[{"id":"7","station":"7839","satellite":"7603901","start_data_date":"2019-06-02 02:00:00","end_data_date":"2019-06-02 02:10:00"}]`))
		case "data-download":
			w.Write([]byte(`["H2 GRZL 7839 34 02 4 2","H4  1 2019 06 02 02 00 00","C0 0 532.000 std1","11 7300.0 0.05 std1 2","H8","H9"]`))
		}
	}))
	defer srv.Close()

	code, out, errOut := runCLI(t, "fetch",
		"-edc-url", srv.URL,
		"-satellite", "7603901",
		"-start", "2019-06-01",
		"-end", "2019-06-02",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) != 2 || rows[1][0] != "78393402" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestFetchCPF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("action") {
		case "data-query":
			w.Write([]byte(`[{"id":3,"station":"","satellite":"7603901","start_data_date":"2019-06-01 00:00:00","end_data_date":"2019-06-05 00:00:00"}]`))
		case "data-download":
			w.Write([]byte(`["H1 CPF  2  SGF 2019 06 01 00  152 01 lageos1","H9",` +
				`"10 0 58635      0.000000  0       7712345.123      -1234567.891       4123456.500",` +
				`"10 0 58635    120.000000  0       7712000.000      -1234000.000       4123000.000","99"]`))
		}
	}))
	defer srv.Close()

	code, out, errOut := runCLI(t, "fetch", "-type", "cpf",
		"-edc-url", srv.URL,
		"-satellite", "7603901",
		"-start", "2019-06-01T00:00:00Z",
		"-end", "2019-06-01T00:01:00Z",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) != 2 || rows[1][1] != "7712345.123" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestPassesCommand(t *testing.T) {
	tle := filepath.Join(t.TempDir(), "iss.tle")
	body := "ISS (ZARYA)\n" +
		"1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9993\n" +
		"2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257767\n"
	if err := os.WriteFile(tle, []byte(body), 0o644); err != nil {
		t.Fatalf("write tle: %v", err)
	}

	code, out, errOut := runCLI(t, "passes",
		"-stations", stationsFixture,
		"-eccentricities", eccFixture,
		"-tle", tle,
		"-start", "2021-10-02T12:00:00Z",
		"-duration", "24h",
		"-step", "1m",
		"-min-elevation", "10",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	rows := readCSV(t, out)
	if len(rows) < 2 {
		t.Fatalf("rows = %d, want at least one pass over a day", len(rows))
	}
	for _, r := range rows[1:] {
		if r[0] != "70900513" && r[0] != "78393402" {
			t.Fatalf("unexpected station %q", r[0])
		}
		if r[1] >= r[2] {
			t.Fatalf("rise %s not before set %s", r[1], r[2])
		}
	}
}
