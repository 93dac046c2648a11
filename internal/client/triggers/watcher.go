package triggers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// LocalChangeWatcher syncs after another process writes to the SQLite
// database. Bursts of writes are debounced into one cycle, and nothing
// runs unless the store is dirty, so the engine's own state writes do not
// feed back into new cycles.
type LocalChangeWatcher struct {
	engine       Engine
	state        StateLoader
	log          logging.Logger
	watcher      *fsnotify.Watcher
	base         string
	debounce     time.Duration
	cycleTimeout time.Duration
}

// NewLocalChangeWatcher starts watching the directory of dbFile.
func NewLocalChangeWatcher(engine Engine, state StateLoader, log logging.Logger, dbFile string, debounce, cycleTimeout time.Duration) (*LocalChangeWatcher, error) {
	if dbFile == "" {
		return nil, fmt.Errorf("local change watcher needs a database file")
	}
	abs, err := filepath.Abs(dbFile)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &LocalChangeWatcher{
		engine:       engine,
		state:        state,
		log:          log.With("trigger", "localChange"),
		watcher:      fw,
		base:         filepath.Base(abs),
		debounce:     debounce,
		cycleTimeout: cycleTimeout,
	}, nil
}

// Run processes events until ctx is done and then closes the watcher.
func (w *LocalChangeWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			fire = time.After(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "watcher error", "error", err)

		case <-fire:
			fire = nil
			w.flush(ctx)
		}
	}
}

// relevant matches writes to the database file and its -wal, -shm and
// -journal companions.
func (w *LocalChangeWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), w.base)
}

func (w *LocalChangeWatcher) flush(ctx context.Context) {
	st, err := w.state.Load(ctx)
	if err != nil {
		w.log.Error(ctx, "load sync state", "error", err)
		return
	}
	if !st.Dirty() {
		w.log.Debug(ctx, "database changed but nothing to upload")
		return
	}
	runCycle(ctx, w.engine, w.log, syncer.TriggerLocalChange, w.cycleTimeout)
}
