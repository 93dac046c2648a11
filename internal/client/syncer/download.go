package syncer

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/notesync/internal/client/merge"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/snapshot"
	"github.com/dmitrijs2005/notesync/internal/common"
)

// download fetches the remote snapshot and merges it into the local store.
// Failures are folded into the outcome.
func (e *Engine) download(ctx context.Context, store remote.Store, discover bool) DownloadOutcome {
	st, err := e.state.Load(ctx)
	if err != nil {
		return outcomeError(ErrKindDownloading, "", err)
	}

	fileID := st.FileID
	var meta *models.RemoteFile
	justFound := false

	if fileID == "" {
		f, err := e.locate(ctx, store, st.Location, discover)
		if err != nil {
			return outcomeError(ErrKindDownloading, "", err)
		}
		if f == nil {
			e.log.Info(ctx, "no remote file found", "name", e.fileName)
			return DownloadOutcome{Kind: OutcomeNoFileFound}
		}
		fileID, meta, justFound = f.ID, f, true
	} else {
		meta, err = store.GetMetadata(ctx, fileID)
		switch {
		case errors.Is(err, common.ErrRemoteNotFound):
			e.log.Warn(ctx, "stored remote file is gone, rediscovering", "id", fileID)
			if err := e.state.ClearRemote(ctx); err != nil {
				return outcomeError(ErrKindDownloading, fileID, err)
			}
			f, err := e.locate(ctx, store, st.Location, discover)
			if err != nil {
				return outcomeError(ErrKindDownloading, fileID, err)
			}
			if f == nil {
				return DownloadOutcome{Kind: OutcomeFileNotFoundNoReplacement, FileID: fileID}
			}
			recovered, err := store.GetMetadata(ctx, f.ID)
			if err != nil {
				return outcomeError(ErrKindPostDiscoveryMetadata, f.ID, err)
			}
			e.log.Info(ctx, "recovered remote file", "old", fileID, "new", f.ID)
			fileID, meta, justFound = f.ID, recovered, true
		case err != nil:
			return outcomeError(ErrKindDownloading, fileID, err)
		}
	}

	if !justFound && !st.ModifiedTime.IsZero() && meta.ModifiedTime.Equal(st.ModifiedTime) {
		e.log.Debug(ctx, "remote unchanged, skipping download", "id", fileID)
		return DownloadOutcome{Kind: OutcomeSkippedNoChange, FileID: fileID}
	}

	content, err := store.Download(ctx, fileID)
	if errors.Is(err, common.ErrRemoteNotFound) {
		if _, cerr := e.state.ClearRemoteIf(ctx, fileID); cerr != nil {
			e.log.Error(ctx, "failed to clear stale remote id", "id", fileID, "error", cerr)
		}
		return DownloadOutcome{Kind: OutcomeFileNotFoundOnRemote, FileID: fileID}
	}
	if err != nil {
		return outcomeError(ErrKindDownloading, fileID, err)
	}

	modified := meta.ModifiedTime
	if after, err := store.GetMetadata(ctx, fileID); err == nil {
		modified = after.ModifiedTime
	} else {
		e.log.Debug(ctx, "post-download metadata failed, keeping earlier time", "id", fileID, "error", err)
	}

	snap, err := snapshot.Decode(content)
	if err != nil {
		kind := ErrKindDownloading
		if errors.Is(err, common.ErrParse) {
			kind = ErrKindParsing
		}
		return outcomeError(kind, fileID, err)
	}
	if snap.Skipped > 0 {
		e.log.Warn(ctx, "ignored malformed remote records", "count", snap.Skipped)
	}

	stats, err := merge.Apply(ctx, e.notes, e.log, snap.Notes)
	if err != nil {
		return outcomeError(ErrKindDownloading, fileID, err)
	}
	e.log.Info(ctx, "merged remote notes", "id", fileID, "stats", stats.String())

	if err := e.state.SetModifiedTime(ctx, modified); err != nil {
		return outcomeError(ErrKindDownloading, fileID, err)
	}
	if stats.Changed() {
		e.pub.PublishNotesChanged(ctx)
	}
	return DownloadOutcome{Kind: OutcomeOK, FileID: fileID, Changed: stats.Changed()}
}

// locate runs discovery by name and persists what it finds. Discovery
// searches both locations, everything else the preferred one.
func (e *Engine) locate(ctx context.Context, store remote.Store, preferred models.StorageLocation, discover bool) (*models.RemoteFile, error) {
	if discover {
		return e.locator.FindByName(ctx, store, e.fileName, models.LocationUnset, true)
	}

	f, err := e.locator.FindByName(ctx, store, e.fileName, preferred, false)
	if err != nil || f == nil {
		return f, err
	}
	if err := e.state.SetRemote(ctx, *f); err != nil {
		return nil, err
	}
	return f, nil
}
