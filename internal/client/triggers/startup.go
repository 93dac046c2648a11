package triggers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// CredentialChecker reports whether a credential is available silently.
type CredentialChecker interface {
	Available(ctx context.Context) bool
}

// Startup is the install and update path: discover the remote file on a
// fresh install, pull on a configured one.
func Startup(ctx context.Context, engine Engine, state StateLoader, creds CredentialChecker, log logging.Logger, timeout time.Duration) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	st, err := state.Load(ctx)
	if err != nil {
		log.Error(ctx, "load sync state", "error", err)
		return
	}

	switch st.Phase() {
	case syncstate.PhaseUninitialized:
		if !creds.Available(ctx) {
			log.Info(ctx, "not connected, skipping discovery")
			return
		}
		res := engine.Discover(ctx)
		log.Info(ctx, "startup discovery finished", "message", res.Message, "discovered", res.PreferenceDiscovered)
	case syncstate.PhaseConfigured:
		out, err := engine.Pull(ctx)
		if err != nil {
			log.Info(ctx, "startup pull skipped", "reason", err)
			return
		}
		log.Info(ctx, "startup pull finished", "outcome", out.String())
	default:
		log.Debug(ctx, "sync disabled, nothing to do at startup")
	}
}
