package app

import (
	"context"
	"fmt"

	"tradecouncil/internal/config"
	"tradecouncil/internal/engine"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/scheduler"
	statushttp "tradecouncil/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns the wired engine: the cycle runner on its schedule plus the
// optional status API.
type App struct {
	cfg       *config.Config
	store     Store
	runner    *engine.CycleRunner
	scheduler *scheduler.Scheduler
	http      *statushttp.Server
	watcher   *config.RiskWatcher
	Summary   *StartupSummary
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run blocks until ctx is cancelled, or until the single cycle finishes in
// run-once mode.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.runner == nil || a.scheduler == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(runCtx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		// Stop the http server once a run-once schedule has finished.
		defer stop()
		a.scheduler.Start(runCtx, a.runner.Tick)
		return nil
	})

	return group.Wait()
}

// RunOnce executes exactly one cycle and reports its outcome.
func (a *App) RunOnce(ctx context.Context) (engine.Outcome, error) {
	if a == nil || a.runner == nil {
		return engine.Outcome{}, fmt.Errorf("app not initialized")
	}
	return a.runner.RunCycle(ctx), nil
}

func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
