package app

import (
	"context"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/watch"
)

// Watch runs the build once and then again every time a chain file changes,
// until ctx is done. Every rebuild starts from scratch; unchanged
// declarations reuse the cached chain.
func (a *App) Watch(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	w, err := watch.New(a.config.ChainPaths, watch.Options{Patterns: []string{"*.hcl"}}, func(ctx context.Context, files []string) error {
		a.logger.Info("🔁 Chain files changed, rebuilding.", "files", files)
		_, err := a.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if _, err := a.Run(ctx); err != nil {
		a.logger.Error("Build failed.", "error", err)
	}
	a.logger.Info("👀 Watching chain files for changes.", "dirs", w.Dirs())
	return w.Run(ctx)
}
