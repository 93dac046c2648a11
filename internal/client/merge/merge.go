// Package merge applies a remote snapshot to the local store with
// whole-record last-writer-wins semantics. A tombstone is a regular record
// version: it wins or loses by timestamp like any other edit and is never
// removed by a merge.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// Store is the part of the local note service a merge needs.
type Store interface {
	// Get returns common.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Note, error)
	Save(ctx context.Context, n models.Note) (models.Note, error)
}

// Stats summarizes one Apply call.
type Stats struct {
	Applied int
	Kept    int
	Skipped int
	Failed  int
}

// Changed reports whether any local record was written.
func (s Stats) Changed() bool { return s.Applied > 0 }

// ShouldApply reports whether remote must overwrite local. local is nil
// when the id is unknown locally. On equal timestamps the local record
// stands.
func ShouldApply(local *models.Note, remote models.Note) bool {
	if local == nil {
		return true
	}
	if remote.IsDeleted {
		return !local.IsDeleted || remote.Timestamp > local.Timestamp
	}
	return remote.Timestamp > local.Timestamp
}

// Apply merges remote records one by one. A failed lookup or save is logged
// and counted and does not stop the rest. The returned error is non-nil
// only when ctx is done.
func Apply(ctx context.Context, store Store, log logging.Logger, remote []models.Note) (Stats, error) {
	var st Stats
	for _, r := range remote {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if r.ID == "" {
			st.Skipped++
			continue
		}

		local, err := store.Get(ctx, r.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			log.Error(ctx, "merge lookup failed", "id", r.ID, "error", err)
			st.Failed++
			continue
		}
		if errors.Is(err, common.ErrNotFound) {
			local = nil
		}

		if !ShouldApply(local, r) {
			st.Kept++
			continue
		}

		if _, err := store.Save(ctx, r); err != nil {
			log.Error(ctx, "merge save failed", "id", r.ID, "error", err)
			st.Failed++
			continue
		}
		st.Applied++
	}

	log.Debug(ctx, "merge complete",
		"applied", st.Applied, "kept", st.Kept, "skipped", st.Skipped, "failed", st.Failed)
	return st, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("applied=%d kept=%d skipped=%d failed=%d", s.Applied, s.Kept, s.Skipped, s.Failed)
}
