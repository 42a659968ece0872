// Package app wires the hook registry, execution engine, Lua loader and
// metrics into a runnable process.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/hookline/internal/config"
	"github.com/dshills/hookline/internal/hook"
	"github.com/dshills/hookline/internal/metrics"
	"github.com/dshills/hookline/internal/plugin"
	"github.com/dshills/hookline/internal/plugin/lua"
)

// shutdownTimeout bounds the admin server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Application is the central coordinator for hookline components.
type Application struct {
	cfg    *config.Config
	logger *zap.Logger

	registry *hook.Registry
	engine   *hook.Engine
	loader   *plugin.Loader
	metrics  *metrics.Collector

	running atomic.Bool
}

// New assembles an Application from cfg. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	caps := make([]lua.Capability, 0, len(cfg.Lua.Capabilities))
	for _, s := range cfg.Lua.Capabilities {
		c, err := lua.ParseCapability(s)
		if err != nil {
			return nil, &InitError{Component: "lua sandbox", Err: err}
		}
		caps = append(caps, c)
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(),
	}
	app.registry = hook.NewRegistry(hook.WithRegistryLogger(logger.Named("registry")))
	app.metrics.TrackRegistry(app.registry)
	app.engine = hook.NewEngine(app.registry,
		hook.WithLogger(logger.Named("engine")),
		hook.WithObserver(app.metrics),
	)
	app.loader = plugin.NewLoader(app.registry,
		plugin.WithLogger(logger.Named("loader")),
		plugin.WithExecutionTimeout(cfg.Lua.Timeout.Std()),
		plugin.WithCapabilities(caps...),
	)
	return app, nil
}

// Registry returns the hook registry.
func (app *Application) Registry() *hook.Registry { return app.registry }

// Engine returns the execution engine.
func (app *Application) Engine() *hook.Engine { return app.engine }

// Loader returns the hook file loader.
func (app *Application) Loader() *plugin.Loader { return app.loader }

// Metrics returns the metrics collector.
func (app *Application) Metrics() *metrics.Collector { return app.metrics }

// LoadHooks loads the configured hook directory.
func (app *Application) LoadHooks(ctx context.Context) (plugin.Grouping, error) {
	return app.loader.Load(ctx, app.cfg.Hooks.Dir)
}

// Run executes hook name and waits for its result, bounded by the configured
// run timeout. An empty phase or "all" runs pre, main and post.
func (app *Application) Run(ctx context.Context, name string, args []any, recv any, phase string) (any, error) {
	sel := hook.AllPhases()
	if phase != "" && phase != "all" {
		p, err := hook.ParsePhase(phase)
		if err != nil {
			return nil, err
		}
		sel = hook.OnlyPhase(p)
	}

	if d := app.cfg.Hooks.RunTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return app.engine.Run(ctx, name, args, recv, sel)
}

// Serve watches the hook directory when hooks.watch is set and, when an admin
// address is configured, serves the admin HTTP surface. It returns when ctx is
// done.
func (app *Application) Serve(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	errc := make(chan error, 2)
	var srv *http.Server
	if addr := app.cfg.Admin.Addr; addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           app.AdminRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			app.logger.Info("admin server listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- &InitError{Component: "admin server", Err: err}
			}
		}()
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if app.cfg.Hooks.Watch {
		go func() {
			errc <- app.loader.Watch(watchCtx, app.cfg.Hooks.Dir, plugin.OnReload(func(ev plugin.WatchEvent) {
				app.metrics.Reloaded(ev.Unloaded, ev.Err)
			}))
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancelWatch()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			app.logger.Warn("admin server shutdown", zap.Error(serr))
		}
	}
	return err
}

// Close releases the Lua states and flushes the logger.
func (app *Application) Close() error {
	err := app.loader.Close()
	_ = app.logger.Sync()
	return err
}
