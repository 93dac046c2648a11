// Package triggers decides when the sync engine runs: on a jittered
// interval, at session start, after local writes and at startup.
package triggers

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
)

// Engine is the part of *syncer.Engine the triggers drive.
type Engine interface {
	Sync(ctx context.Context, trig syncer.Trigger) syncer.Result
	Pull(ctx context.Context) (syncer.DownloadOutcome, error)
	Discover(ctx context.Context) syncer.Result
}

// StateLoader reads the persisted sync state.
type StateLoader interface {
	Load(ctx context.Context) (syncstate.State, error)
}
