package notes

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Repository describes the storage operations for notes.
type Repository interface {
	// Upsert inserts the note or replaces the stored row with the same id.
	Upsert(ctx context.Context, note models.Note) error

	// GetAll returns every note ordered by id. Tombstones are included only
	// when includeTombstones is set.
	GetAll(ctx context.Context, includeTombstones bool) ([]models.Note, error)

	// GetByID returns common.ErrNotFound when no row has the id.
	GetByID(ctx context.Context, id string) (*models.Note, error)

	// GetForScope returns the notes attached to one scope.
	GetForScope(ctx context.Context, scopeType, scopeValue string, includeTombstones bool) ([]models.Note, error)

	// Delete physically removes a row. It is never called by sync.
	Delete(ctx context.Context, id string) error

	DeleteAll(ctx context.Context) error
}
