// Package daemon runs notesyncd: the background process that keeps the
// local store in sync on a timer, after local writes and when a status
// client connects, and reports progress over websocket and gRPC health.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/bootstrap"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/statushub"
	"github.com/dmitrijs2005/notesync/internal/client/triggers"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/gofrs/flock"
)

// LockFile is created in the data directory while a daemon runs.
const LockFile = "notesyncd.lock"

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another notesyncd is running for this data directory")

type App struct {
	config *config.Config
	logger logging.Logger
	lock   *flock.Flock
	rt     *bootstrap.Runtime
	hub    *statushub.Hub
	health *statushub.Health
}

// NewApp takes the data directory lock and opens the local store.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	health := statushub.NewHealth(logger.With("component", "health"))
	hub := statushub.NewHub(logger.With("component", "hub"), health)

	rt, err := bootstrap.Open(ctx, c, logger, nil, hub)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("init: %w", err)
	}

	return &App{config: c, logger: logger, lock: lock, rt: rt, hub: hub, health: health}, nil
}

func (app *App) startStatusServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.StatusAddr == "" {
		return
	}
	if err := app.hub.Serve(ctx, app.config.StatusAddr); err != nil {
		app.logger.Error(ctx, "status server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.HealthAddr == "" {
		return
	}
	if err := app.health.Run(ctx, app.config.HealthAddr); err != nil {
		app.logger.Error(ctx, "health server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startWatcher(ctx context.Context) {
	if app.rt.DBFile == "" {
		app.logger.Info(ctx, "local change watcher disabled for this database")
		return
	}
	w, err := triggers.NewLocalChangeWatcher(app.rt.Engine, app.rt.State, app.logger,
		app.rt.DBFile, app.config.LocalChangeDebounce, app.config.CycleTimeout)
	if err != nil {
		app.logger.Error(ctx, "local change watcher", "error", err)
		return
	}
	w.Run(ctx)
}

// Run blocks until ctx is cancelled or a listener fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting notesyncd...", "status_addr", app.config.StatusAddr, "health_addr", app.config.HealthAddr)

	engine := app.rt.Engine
	gate := triggers.NewSessionGate(engine, app.rt.State, app.logger, app.config.SessionDebounce, app.config.CycleTimeout)
	app.hub.OnConnect(func(ctx context.Context) { gate.Fire(ctx) })

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { app.hub.Run(ctx) })
	run(func() { app.startStatusServer(ctx, cancelFunc) })
	run(func() { app.startHealthServer(ctx, cancelFunc) })

	triggers.Startup(ctx, engine, app.rt.State, app.rt.Auth, app.logger, app.config.CycleTimeout)
	gate.Fire(ctx)

	if app.config.SyncInterval > 0 {
		p := triggers.NewPeriodic(engine, app.logger, app.config.SyncInterval, app.config.IntervalJitter, app.config.CycleTimeout)
		run(func() { p.Run(ctx) })
	}
	run(func() { app.startWatcher(ctx) })

	wg.Wait()
	app.logger.Info(context.Background(), "notesyncd stopped")
}

func (app *App) close() {
	if err := app.rt.Close(); err != nil {
		app.logger.Error(context.Background(), "close store", "error", err)
	}
	if err := app.lock.Unlock(); err != nil {
		app.logger.Error(context.Background(), "release lock", "error", err)
	}
}
