package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/buildchain/internal/chaincache"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/events"
	"github.com/specialistvlad/buildchain/internal/hclchain"
	"github.com/specialistvlad/buildchain/internal/registry"
	"github.com/specialistvlad/buildchain/internal/telemetry"
)

// Version is the application version reported by the CLI and telemetry.
var Version = "dev"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx       context.Context
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	handlers  *registry.Registry
	loader    *hclchain.Loader
	cache     *chaincache.Cache
	telemetry *telemetry.Telemetry
	sink      events.Sink
	closers   []func() error

	serveOnce  sync.Once
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, handler
// registry and telemetry providers. Without modules the built-in modules
// are registered.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logW := cfg.LogOutput
	if logW == nil {
		logW = outW
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	handlers := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	handlers.Install(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "handlers", handlers.Names())

	if err := handlers.Validate(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	cache, err := chaincache.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "buildchain",
		ServiceVersion: Version,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   true,
		Writer:         logW,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &App{
		ctx:       ctx,
		outW:      outW,
		logger:    logger,
		config:    cfg,
		handlers:  handlers,
		loader:    hclchain.NewLoader(handlers, outW),
		cache:     cache,
		telemetry: tel,
		closers:   []func() error{func() error { return tel.Shutdown(context.WithoutCancel(ctx)) }},
	}

	sinks := events.Multi{events.LogSink{}}
	if cfg.EventsURL != "" {
		onDropped, err := droppedEventCounter(tel.MeterProvider)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		socketSink, err := events.DialSocketIO(ctx, events.SocketIOConfig{URL: cfg.EventsURL, OnError: onDropped})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect event sink: %w", err)
		}
		sinks = append(sinks, socketSink)
		a.closers = append(a.closers, socketSink.Close)
	}
	a.sink = sinks

	return a, nil
}

// Handlers returns the application's handler registry. This is primarily for testing.
func (a *App) Handlers() *registry.Registry {
	return a.handlers
}

// Cache returns the application's chain cache.
func (a *App) Cache() *chaincache.Cache {
	return a.cache
}

// Close stops the health check server, flushes telemetry and disconnects
// event sinks.
func (a *App) Close() error {
	var errs []error
	if err := a.closeHealthCheckServer(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
