// Package syncstate persists the engine's small piece of state (remote file
// reference, storage preference, sync timestamps and the dirty counter) in
// the metadata key/value table.
package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const (
	keyFileID       = "remote_file_id"
	keyModifiedTime = "remote_modified_time"
	keyLocation     = "storage_location"
	keyLastSync     = "last_sync_time"
	keyLastSession  = "last_session_sync_time"
	keyDirtySeq     = "dirty_seq"
)

// Phase is the first-run discovery state machine. Discovering only exists
// in memory while a discovery cycle runs; the persisted state maps to the
// other three.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseDiscovering
	PhaseConfigured
	PhaseDisabled
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseDiscovering:
		return "discovering"
	case PhaseConfigured:
		return "configured"
	case PhaseDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// State is a snapshot of the persisted sync state.
type State struct {
	FileID          string
	ModifiedTime    time.Time
	Location        models.StorageLocation
	LastSyncTime    time.Time
	LastSessionSync time.Time

	// DirtySeq counts local writes since the last confirmed upload.
	DirtySeq int64
}

func (s State) Dirty() bool { return s.DirtySeq > 0 }

func (s State) Phase() Phase {
	switch {
	case s.Location == models.LocationDisabled:
		return PhaseDisabled
	case s.Location.Syncable():
		return PhaseConfigured
	default:
		return PhaseUninitialized
	}
}

// Store reads and writes State. Multi-key updates run in one transaction.
type Store struct {
	db      *sql.DB
	dialect dbx.Dialect
	meta    metadata.Repository
}

func New(db *sql.DB, dialect dbx.Dialect) *Store {
	return &Store{db: db, dialect: dialect, meta: metadata.NewSQLRepository(db, dialect)}
}

func (s *Store) Load(ctx context.Context) (State, error) {
	kv, err := s.meta.List(ctx)
	if err != nil {
		return State{}, fmt.Errorf("load sync state: %w", err)
	}

	st := State{
		FileID:          string(kv[keyFileID]),
		ModifiedTime:    parseTime(kv[keyModifiedTime]),
		LastSyncTime:    parseTime(kv[keyLastSync]),
		LastSessionSync: parseTime(kv[keyLastSession]),
		DirtySeq:        parseInt(kv[keyDirtySeq]),
	}
	if loc, err := models.ParseStorageLocation(string(kv[keyLocation])); err == nil {
		st.Location = loc
	}
	return st, nil
}

// SetRemote records the file id and its modification time.
func (s *Store) SetRemote(ctx context.Context, f models.RemoteFile) error {
	return s.withTx(ctx, func(ctx context.Context, m metadata.Repository) error {
		return setRemote(ctx, m, f)
	})
}

// SetModifiedTime records the last observed modification time of the
// current remote file.
func (s *Store) SetModifiedTime(ctx context.Context, t time.Time) error {
	return s.meta.Set(ctx, keyModifiedTime, formatTime(t))
}

// ClearRemote forgets the remote file reference.
func (s *Store) ClearRemote(ctx context.Context) error {
	return s.withTx(ctx, clearRemote)
}

// ClearRemoteIf forgets the reference only if it still points at id.
func (s *Store) ClearRemoteIf(ctx context.Context, id string) (bool, error) {
	cleared := false
	err := s.withTx(ctx, func(ctx context.Context, m metadata.Repository) error {
		cur, err := m.Get(ctx, keyFileID)
		if err != nil {
			return err
		}
		if string(cur) != id {
			return nil
		}
		cleared = true
		return clearRemote(ctx, m)
	})
	return cleared, err
}

func (s *Store) SetLocation(ctx context.Context, loc models.StorageLocation) error {
	return s.meta.Set(ctx, keyLocation, []byte(loc))
}

// ChangeLocation stores loc and, when it differs from the current one,
// drops the remote reference that belonged to the old location.
func (s *Store) ChangeLocation(ctx context.Context, loc models.StorageLocation) (bool, error) {
	changed := false
	err := s.withTx(ctx, func(ctx context.Context, m metadata.Repository) error {
		cur, err := m.Get(ctx, keyLocation)
		if err != nil {
			return err
		}
		if string(cur) == string(loc) {
			return nil
		}
		changed = true
		if err := m.Set(ctx, keyLocation, []byte(loc)); err != nil {
			return err
		}
		return clearRemote(ctx, m)
	})
	return changed, err
}

// SetDiscovered adopts a file found by discovery together with its location.
func (s *Store) SetDiscovered(ctx context.Context, f models.RemoteFile) error {
	return s.withTx(ctx, func(ctx context.Context, m metadata.Repository) error {
		if err := m.Set(ctx, keyLocation, []byte(f.Location)); err != nil {
			return err
		}
		return setRemote(ctx, m, f)
	})
}

func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.meta.Set(ctx, keyLastSync, formatTime(t))
}

func (s *Store) SetLastSessionSync(ctx context.Context, t time.Time) error {
	return s.meta.Set(ctx, keyLastSession, formatTime(t))
}

// MarkDirty bumps the dirty counter through tx, so it commits or rolls back
// together with the local write that caused it.
func (s *Store) MarkDirty(ctx context.Context, tx dbx.DBTX) error {
	m := metadata.NewSQLRepository(tx, s.dialect)
	cur, err := m.Get(ctx, keyDirtySeq)
	if err != nil {
		return err
	}
	return m.Set(ctx, keyDirtySeq, []byte(strconv.FormatInt(parseInt(cur)+1, 10)))
}

// CommitUpload stores the uploaded file reference and clears the dirty
// counter, unless local writes happened after observedSeq was read.
func (s *Store) CommitUpload(ctx context.Context, f models.RemoteFile, observedSeq int64) (bool, error) {
	cleared := false
	err := s.withTx(ctx, func(ctx context.Context, m metadata.Repository) error {
		if err := setRemote(ctx, m, f); err != nil {
			return err
		}
		cur, err := m.Get(ctx, keyDirtySeq)
		if err != nil {
			return err
		}
		if parseInt(cur) != observedSeq {
			return nil
		}
		cleared = true
		return m.Set(ctx, keyDirtySeq, []byte("0"))
	})
	return cleared, err
}

// Clear wipes all sync state.
func (s *Store) Clear(ctx context.Context) error {
	return s.meta.Clear(ctx)
}

// ClearTx wipes all sync state through tx.
func (s *Store) ClearTx(ctx context.Context, tx dbx.DBTX) error {
	return metadata.NewSQLRepository(tx, s.dialect).Clear(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, m metadata.Repository) error) error {
	err := dbx.WithRepoTx(ctx, s.db, s.dialect, metadata.NewSQLRepository, func(ctx context.Context, _ dbx.DBTX, m *metadata.SQLRepository) error {
		return fn(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}
	return nil
}

func setRemote(ctx context.Context, m metadata.Repository, f models.RemoteFile) error {
	if err := m.Set(ctx, keyFileID, []byte(f.ID)); err != nil {
		return err
	}
	return m.Set(ctx, keyModifiedTime, formatTime(f.ModifiedTime))
}

func clearRemote(ctx context.Context, m metadata.Repository) error {
	if err := m.Delete(ctx, keyFileID); err != nil {
		return err
	}
	return m.Delete(ctx, keyModifiedTime)
}

func formatTime(t time.Time) []byte {
	if t.IsZero() {
		return []byte{}
	}
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

func parseTime(b []byte) time.Time {
	if len(b) == 0 {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseInt(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
