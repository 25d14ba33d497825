package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/executor"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/report"
)

// Load reads the chain files and builds the chain, reusing a cached chain
// when the declarations have not changed. It returns the initial values
// declared in the files alongside the chain.
func (a *App) Load(ctx context.Context) (*chain.Chain, map[item.ID][]any, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	def, err := a.loader.Load(ctx, a.config.ChainPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chain files: %w", err)
	}

	c, cached, err := a.cache.Build(ctx, def.Builder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build chain: %w", err)
	}
	a.logger.Debug("Build chain ready.", "steps", c.Len(), "cached", cached, "fingerprint", c.Fingerprint())
	return c, def.Initial, nil
}

// Run executes the main application logic: load, build and execute the
// chain, then write the summary and the optional report.
func (a *App) Run(ctx context.Context) (*executor.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	a.startHealthCheckServer()

	c, initial, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}

	if c.Len() == 0 {
		a.logger.Warn("No steps found in chain, execution not required.")
	} else {
		a.logger.Info("🚀 Starting concurrent execution...", "steps", c.Len(), "workers", a.config.Workers)
	}

	exec := executor.New(c,
		executor.WithWorkers(a.config.Workers),
		executor.WithFailFast(a.config.FailFast),
		executor.WithSink(a.sink),
		executor.WithTracerProvider(a.telemetry.TracerProvider),
		executor.WithMeterProvider(a.telemetry.MeterProvider),
	)
	res, runErr := exec.Execute(ctx, initial)
	if res == nil {
		return nil, runErr
	}
	a.logger.Info("🏁 Execution finished.", "run_id", res.RunID, "succeeded", res.Succeeded, "duration", res.Duration())

	report.PrintSummary(a.outW, res, &report.SummaryOptions{NoColor: a.config.NoColor})
	if a.config.ReportPath != "" {
		if err := writeReport(a.config.ReportPath, report.FromResult(res, runErr)); err != nil {
			a.logger.Error("Failed to write build report.", "path", a.config.ReportPath, "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	a.logger.Debug("App.Run method finished.")
	return res, runErr
}

// Graph writes the chain in Graphviz dot format to w.
func (a *App) Graph(ctx context.Context, w io.Writer) error {
	c, _, err := a.Load(ctx)
	if err != nil {
		return err
	}
	return c.WriteDot(w)
}

func writeReport(path string, r report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := r.Write(f, report.FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
