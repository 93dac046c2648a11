package triggers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// SessionGate runs a session sync at most once per debounce window. The
// window is measured from the last healthy session, periodic or manual
// cycle.
type SessionGate struct {
	engine       Engine
	state        StateLoader
	log          logging.Logger
	debounce     time.Duration
	cycleTimeout time.Duration
	now          func() time.Time
}

func NewSessionGate(engine Engine, state StateLoader, log logging.Logger, debounce, cycleTimeout time.Duration) *SessionGate {
	return &SessionGate{
		engine:       engine,
		state:        state,
		log:          log.With("trigger", "session"),
		debounce:     debounce,
		cycleTimeout: cycleTimeout,
		now:          time.Now,
	}
}

// Fire starts a session sync unless one ran recently. It reports whether
// a cycle was attempted.
func (g *SessionGate) Fire(ctx context.Context) bool {
	st, err := g.state.Load(ctx)
	if err != nil {
		g.log.Error(ctx, "load sync state", "error", err)
		return false
	}
	if !st.LastSessionSync.IsZero() && g.now().Sub(st.LastSessionSync) < g.debounce {
		g.log.Debug(ctx, "session sync debounced", "last", st.LastSessionSync)
		return false
	}

	runCycle(ctx, g.engine, g.log, syncer.TriggerSession, g.cycleTimeout)
	return true
}
