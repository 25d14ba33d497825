package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/buildchain/internal/chaincache"
	"github.com/specialistvlad/buildchain/internal/executor"
	"github.com/specialistvlad/buildchain/internal/telemetry"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ChainPaths []string // hcl files or directories

	Workers   int
	FailFast  bool
	CacheSize int

	LogFormat       string
	LogLevel        string
	LogOutput       io.Writer // defaults to the application output
	HealthcheckPort int
	NoColor         bool

	ReportPath string
	EventsURL  string

	TraceExporter  string
	MetricExporter string
	OTLPEndpoint   string
}

// NewConfig fills in defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Workers == 0 {
		cfg.Workers = executor.DefaultWorkers
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = chaincache.DefaultSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	defaults := telemetry.DefaultConfig()
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = defaults.TraceExporter
	}
	if cfg.MetricExporter == "" {
		cfg.MetricExporter = defaults.MetricExporter
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = defaults.OTLPEndpoint
	}

	var errs []string
	if len(cfg.ChainPaths) == 0 {
		errs = append(errs, "ChainPaths is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Sprintf("workers must be positive, got %d", cfg.Workers))
	}
	if cfg.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("cache size must be positive, got %d", cfg.CacheSize))
	}
	if !oneOf(cfg.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Sprintf("log level must be one of debug, info, warn, error; got %q", cfg.LogLevel))
	}
	if !oneOf(cfg.LogFormat, "text", "json") {
		errs = append(errs, fmt.Sprintf("log format must be text or json, got %q", cfg.LogFormat))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Sprintf("healthcheck port out of range: %d", cfg.HealthcheckPort))
	}
	if !oneOf(cfg.TraceExporter, telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP) {
		errs = append(errs, fmt.Sprintf("trace exporter must be none, stdout or otlp; got %q", cfg.TraceExporter))
	}
	if !oneOf(cfg.MetricExporter, telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterPrometheus) {
		errs = append(errs, fmt.Sprintf("metric exporter must be none, stdout or prometheus; got %q", cfg.MetricExporter))
	}

	if len(errs) > 0 {
		return nil, errors.New("invalid configuration:\n- " + strings.Join(errs, "\n- "))
	}
	return &cfg, nil
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
