package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/buildchain/internal/registry"
	"github.com/specialistvlad/buildchain/internal/telemetry"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)

	buf.Reset()
	newLogger("bogus", "text", &buf).Debug("debug is below the default level")
	assert.Empty(t, buf.String())
}

func TestNewApp_RegistersCoreModules(t *testing.T) {
	cfg, err := NewConfig(Config{ChainPaths: []string{"."}, MetricExporter: "none"})
	require.NoError(t, err)

	a, err := NewApp(context.Background(), io.Discard, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.Equal(t, []string{"collect", "emit", "env_vars", "exec", "http_request", "print"}, a.Handlers().Names())
}

type brokenModule struct{}

func (brokenModule) Register(r *registry.Registry) {
	r.RegisterHandler("broken", &registry.RegisteredHandler{})
}

func TestNewApp_InvalidRegistry(t *testing.T) {
	cfg, err := NewConfig(Config{ChainPaths: []string{"."}, MetricExporter: "none"})
	require.NoError(t, err)

	_, err = NewApp(context.Background(), io.Discard, cfg, brokenModule{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler 'broken': no Go function registered")
}

func TestNewApp_InvalidEventsURL(t *testing.T) {
	cfg, err := NewConfig(Config{ChainPaths: []string{"."}, MetricExporter: "none", EventsURL: "no-scheme"})
	require.NoError(t, err)

	_, err = NewApp(context.Background(), io.Discard, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect event sink")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{
		ServiceName:    "buildchain",
		TraceExporter:  telemetry.ExporterNone,
		MetricExporter: telemetry.ExporterPrometheus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	a := &App{
		logger:    slog.New(slog.DiscardHandler),
		telemetry: tel,
		config:    &Config{},
	}
	srv := httptest.NewServer(a.newMux())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.telemetry = telemetry.Noop()
	noMetrics := httptest.NewServer(a.newMux())
	t.Cleanup(noMetrics.Close)
	resp, err = http.Get(noMetrics.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartHealthCheckServer_Disabled(t *testing.T) {
	a := &App{
		ctx:       context.Background(),
		logger:    slog.New(slog.DiscardHandler),
		telemetry: telemetry.Noop(),
		config:    &Config{},
	}
	a.startHealthCheckServer()
	assert.Nil(t, a.httpServer)
	assert.NoError(t, a.closeHealthCheckServer())
}
