package config

import (
	"flag"
	"testing"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/archive"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.EccentricityPolicy != "strict" || cfg.Workers != 4 || cfg.GRPCAddr != ":50051" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("Default() = %+v", cfg)
	}
	if cfg.Archive.URL != archive.DefaultURL || cfg.Archive.Timeout != 30*time.Second {
		t.Fatalf("archive defaults = %+v", cfg.Archive)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"SLR_STATION_FILE": "/data/ITRF2014.snx",
		"SLR_ECC_POLICY":   "zero",
		"SLR_WORKERS":      "8",
		"SLR_KEEP_GOING":   "true",
		"SLR_METRICS_ADDR": "",
		"SLR_EDC_TIMEOUT":  "5s",
	}))
	if err != nil {
		t.Fatalf("fromLookup: %v", err)
	}
	if cfg.StationFile != "/data/ITRF2014.snx" || cfg.Workers != 8 || !cfg.KeepGoing {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EccPolicy() != core.EccentricityZeroFallback {
		t.Fatalf("EccPolicy = %v, want zero fallback", cfg.EccPolicy())
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.Archive.Timeout != 5*time.Second {
		t.Fatalf("Archive.Timeout = %s, want 5s", cfg.Archive.Timeout)
	}
}

func TestFromEnvReportsBadNumbers(t *testing.T) {
	_, err := fromLookup(lookupFrom(map[string]string{"SLR_WORKERS": "many", "SLR_EDC_TIMEOUT": "soon"}))
	if err == nil {
		t.Fatalf("expected error for unparseable values")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.EccentricityPolicy = "lenient"
	cfg.Workers = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{"SLR_WORKERS": "8", "SLR_ECC_POLICY": "zero"}))
	if err != nil {
		t.Fatalf("fromLookup: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	cfg.RegisterServerFlags(fs)
	if err := fs.Parse([]string{"-workers", "2", "-grpc-addr", "127.0.0.1:7000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Workers != 2 || cfg.GRPCAddr != "127.0.0.1:7000" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EccentricityPolicy != "zero" {
		t.Fatalf("EccentricityPolicy = %q, want env value kept", cfg.EccentricityPolicy)
	}
}
