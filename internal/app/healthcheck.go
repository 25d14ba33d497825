package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// newMux serves /health and, with the Prometheus exporter, /metrics.
func (a *App) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	if h := a.telemetry.MetricsHandler(); h != nil {
		mux.Handle("/metrics", h)
	}
	return mux
}

// startHealthCheckServer runs the health check server in the background. It
// is started at most once per App.
func (a *App) startHealthCheckServer() {
	a.serveOnce.Do(func() {
		a.logger.Debug("Configuring health check server.")
		if a.config.HealthcheckPort <= 0 {
			a.logger.Debug("Health check server not started: disabled")
			return
		}

		addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			a.logger.Error("Health check server failed to listen", "address", addr, "error", err)
			return
		}

		a.httpServer = &http.Server{
			Handler:           a.newMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
			// Serve returns ErrServerClosed on graceful shutdown.
			if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Health check server failed unexpectedly", "error", err)
			}
		}()
	})
}

func (a *App) closeHealthCheckServer() error {
	if a.httpServer == nil {
		a.logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	a.logger.Debug("Health check server shut down gracefully.")
	return nil
}
