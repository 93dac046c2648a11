// Package services contains application services for the notesync client.
// NoteService layers the note semantics (defaults, tombstones, dirty
// tracking) on top of the raw notes repository.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/google/uuid"
)

// NoteService defines the local note operations used by the REPL and the
// sync engine.
//
// Every write that changes what the next upload would contain bumps the
// dirty counter in the same transaction as the write itself.
type NoteService interface {
	// Create stores a new note with a fresh id.
	Create(ctx context.Context, title, content, scopeType, scopeValue string) (models.Note, error)

	// Save is an idempotent upsert keyed by id. A non-positive timestamp is
	// replaced with the current time. The stored note is returned.
	Save(ctx context.Context, n models.Note) (models.Note, error)

	// Get returns common.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Note, error)

	List(ctx context.Context, includeTombstones bool) ([]models.Note, error)
	ListForScope(ctx context.Context, scopeType, scopeValue string) ([]models.Note, error)
	CountActive(ctx context.Context) (int, error)

	// TombstoneDelete marks the note deleted with a timestamp newer than the
	// one it had, so the deletion wins the next merge.
	TombstoneDelete(ctx context.Context, id string) (models.Note, error)

	// PermanentlyDelete removes the row. It is meant for notes that never
	// left this device; sync never calls it.
	PermanentlyDelete(ctx context.Context, id string) error

	// ClearAll wipes notes and sync state.
	ClearAll(ctx context.Context) error
}

type noteService struct {
	db      *sql.DB
	dialect dbx.Dialect
	notes   notes.Repository
	state   *syncstate.Store
	now     func() int64
}

func NewNoteService(db *sql.DB, dialect dbx.Dialect, state *syncstate.Store) NoteService {
	return &noteService{
		db:      db,
		dialect: dialect,
		notes:   notes.NewSQLRepository(db, dialect),
		state:   state,
		now:     models.NowMillis,
	}
}

func (s *noteService) Create(ctx context.Context, title, content, scopeType, scopeValue string) (models.Note, error) {
	n := models.Note{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		ScopeType:  scopeType,
		ScopeValue: scopeValue,
	}
	return s.Save(ctx, n)
}

func (s *noteService) Save(ctx context.Context, n models.Note) (models.Note, error) {
	if strings.TrimSpace(n.ID) == "" {
		return models.Note{}, errors.New("note id is required")
	}
	if n.Timestamp <= 0 {
		n.Timestamp = s.now()
	}

	err := s.writeTx(ctx, func(ctx context.Context, repo notes.Repository) error {
		return repo.Upsert(ctx, n)
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("save note %s: %w", n.ID, err)
	}
	return n, nil
}

func (s *noteService) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.notes.GetByID(ctx, id)
}

func (s *noteService) List(ctx context.Context, includeTombstones bool) ([]models.Note, error) {
	return s.notes.GetAll(ctx, includeTombstones)
}

func (s *noteService) ListForScope(ctx context.Context, scopeType, scopeValue string) ([]models.Note, error) {
	return s.notes.GetForScope(ctx, scopeType, scopeValue, false)
}

func (s *noteService) CountActive(ctx context.Context) (int, error) {
	active, err := s.notes.GetAll(ctx, false)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (s *noteService) TombstoneDelete(ctx context.Context, id string) (models.Note, error) {
	var out models.Note
	err := s.writeTx(ctx, func(ctx context.Context, repo notes.Repository) error {
		n, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		now := s.now()
		ts := now
		if n.Timestamp >= ts {
			ts = n.Timestamp + 1
		}
		n.IsDeleted = true
		n.DeletedTimestamp = &now
		n.Timestamp = ts

		out = *n
		return repo.Upsert(ctx, *n)
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("delete note %s: %w", id, err)
	}
	return out, nil
}

func (s *noteService) PermanentlyDelete(ctx context.Context, id string) error {
	if _, err := s.notes.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.notes.Delete(ctx, id); err != nil {
		return fmt.Errorf("purge note %s: %w", id, err)
	}
	return nil
}

func (s *noteService) ClearAll(ctx context.Context) error {
	return dbx.WithRepoTx(ctx, s.db, s.dialect, notes.NewSQLRepository, func(ctx context.Context, tx dbx.DBTX, repo *notes.SQLRepository) error {
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		return s.state.ClearTx(ctx, tx)
	})
}

// writeTx runs fn with a transactional repository and marks the store dirty
// before committing.
func (s *noteService) writeTx(ctx context.Context, fn func(ctx context.Context, repo notes.Repository) error) error {
	return dbx.WithRepoTx(ctx, s.db, s.dialect, notes.NewSQLRepository, func(ctx context.Context, tx dbx.DBTX, repo *notes.SQLRepository) error {
		if err := fn(ctx, repo); err != nil {
			return err
		}
		return s.state.MarkDirty(ctx, tx)
	})
}

// IsNotFound reports whether err means the note does not exist locally.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
