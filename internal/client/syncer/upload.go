package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/snapshot"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/common"
)

// upload writes the full local set, tombstones included, to the remote.
func (e *Engine) upload(ctx context.Context, store remote.Store, outcome DownloadOutcome, st syncstate.State) error {
	target := st.FileID
	if outcome.Kind.staleID() && outcome.FileID == target {
		target = ""
	}

	if target == "" {
		if !outcome.NoRemoteFile() {
			return fmt.Errorf("%w: no upload target after %s download", common.ErrConsistency, outcome)
		}
		f, err := e.locator.FindByName(ctx, store, e.fileName, st.Location, false)
		if err != nil {
			return fmt.Errorf("check for existing file: %w", err)
		}
		if f != nil {
			e.log.Info(ctx, "found existing remote file before create", "id", f.ID)
			target = f.ID
		}
	}

	// read before listing so writes racing the upload keep the store dirty
	seq := st.DirtySeq

	notes, err := e.notes.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list local notes: %w", err)
	}
	content, err := snapshot.Encode(notes, e.now())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f, err := store.Upload(ctx, e.fileName, content, target, st.Location)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if f.Location == models.LocationUnset {
		f.Location = st.Location
	}

	cleared, err := e.state.CommitUpload(ctx, f, seq)
	if err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	if !cleared {
		e.log.Info(ctx, "local changes during upload, store stays dirty")
	}
	e.log.Info(ctx, "uploaded snapshot", "id", f.ID, "notes", len(notes), "created", target == "")
	return nil
}
