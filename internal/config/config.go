// Package config holds the runtime settings shared by the binaries.
//
// Values are read from SLR_* environment variables first and may then be
// overridden by command-line flags registered through RegisterFlags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/slr-reduction/core"
	"github.com/signalsfoundry/slr-reduction/internal/archive"
)

// Config is the combined configuration of the reduction tools.
type Config struct {
	// StationFile is a SINEX file with SITE/ID and SOLUTION/ESTIMATE.
	StationFile string
	// EccentricityFile is a SINEX file with SITE/ECCENTRICITY. It may be
	// the same file as StationFile.
	EccentricityFile string
	// EccentricityPolicy is "strict" or "zero".
	// Default: strict
	EccentricityPolicy string

	// Workers bounds the parallel CRD batch.
	// Default: 4
	Workers int
	// KeepGoing reports per-source errors instead of aborting the batch.
	KeepGoing bool

	// GRPCAddr is the listen address of slr-server.
	// Default: :50051
	GRPCAddr string
	// MetricsAddr is the HTTP address for /metrics. Empty disables it.
	// Default: :9090
	MetricsAddr string

	Archive archive.Config
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{}.ApplyDefaults()
}

// FromEnv reads the SLR_* variables. Unparseable numbers are reported
// rather than silently replaced.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		StationFile:        get("SLR_STATION_FILE"),
		EccentricityFile:   get("SLR_ECC_FILE"),
		EccentricityPolicy: get("SLR_ECC_POLICY"),
		GRPCAddr:           get("SLR_GRPC_ADDR"),
		Archive: archive.Config{
			URL:      get("SLR_EDC_URL"),
			Username: get("SLR_EDC_USERNAME"),
			Password: get("SLR_EDC_PASSWORD"),
		},
	}
	if v, ok := lookup("SLR_METRICS_ADDR"); ok {
		// An explicitly empty value disables the metrics listener.
		cfg.MetricsAddr = strings.TrimSpace(v)
		if cfg.MetricsAddr == "" {
			cfg.MetricsAddr = "off"
		}
	}

	var errs []error
	if v := get("SLR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLR_WORKERS: %w", err))
		}
		cfg.Workers = n
	}
	if v := get("SLR_KEEP_GOING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLR_KEEP_GOING: %w", err))
		}
		cfg.KeepGoing = b
	}
	if v := get("SLR_EDC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLR_EDC_TIMEOUT: %w", err))
		}
		cfg.Archive.Timeout = d
	}
	return cfg.ApplyDefaults(), errors.Join(errs...)
}

// ApplyDefaults fills zero fields. A MetricsAddr of "off" becomes empty.
func (c Config) ApplyDefaults() Config {
	if c.EccentricityPolicy == "" {
		c.EccentricityPolicy = core.EccentricityStrict.String()
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = ":50051"
	}
	switch c.MetricsAddr {
	case "":
		c.MetricsAddr = ":9090"
	case "off":
		c.MetricsAddr = ""
	}
	if c.Archive.URL == "" {
		c.Archive.URL = archive.DefaultURL
	}
	if c.Archive.Timeout == 0 {
		c.Archive.Timeout = 30 * time.Second
	}
	return c
}

// Validate checks values that defaults cannot repair.
func (c Config) Validate() error {
	var errs []error
	if _, err := core.ParseEccentricityPolicy(c.EccentricityPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Archive.Timeout < 0 {
		errs = append(errs, fmt.Errorf("archive timeout must not be negative, got %s", c.Archive.Timeout))
	}
	return errors.Join(errs...)
}

// EccPolicy returns the parsed eccentricity policy. Call Validate first.
func (c Config) EccPolicy() core.EccentricityPolicy {
	p, _ := core.ParseEccentricityPolicy(c.EccentricityPolicy)
	return p
}

// RegisterFlags binds the shared flags to c, using its current values as
// defaults so that flags override the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.StationFile, "stations", c.StationFile, "SINEX file with SITE/ID and SOLUTION/ESTIMATE")
	fs.StringVar(&c.EccentricityFile, "eccentricities", c.EccentricityFile, "SINEX file with SITE/ECCENTRICITY")
	fs.StringVar(&c.EccentricityPolicy, "ecc-policy", c.EccentricityPolicy, "missing eccentricity handling: strict or zero")
	fs.IntVar(&c.Workers, "workers", c.Workers, "parallel tracking files")
	fs.BoolVar(&c.KeepGoing, "keep-going", c.KeepGoing, "report per-file errors instead of stopping")
}

// RegisterServerFlags binds the listener flags used by slr-server.
func (c *Config) RegisterServerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "TCP address the gRPC server listens on")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
}

// RegisterArchiveFlags binds the archive client flags.
func (c *Config) RegisterArchiveFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Archive.URL, "edc-url", c.Archive.URL, "archive API endpoint")
	fs.StringVar(&c.Archive.Username, "edc-user", c.Archive.Username, "archive username")
	fs.DurationVar(&c.Archive.Timeout, "edc-timeout", c.Archive.Timeout, "archive request timeout")
}
