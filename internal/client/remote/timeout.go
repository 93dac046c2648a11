package remote

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A non-positive d returns s.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) FindByName(ctx context.Context, name string, loc models.StorageLocation) ([]models.RemoteFile, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.FindByName(ctx, name, loc)
}

func (t *timeoutStore) GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.GetMetadata(ctx, id)
}

func (t *timeoutStore) Download(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Download(ctx, id)
}

func (t *timeoutStore) Upload(ctx context.Context, name string, content []byte, targetID string, loc models.StorageLocation) (models.RemoteFile, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Upload(ctx, name, content, targetID, loc)
}

func (t *timeoutStore) EnsureFolder(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.EnsureFolder(ctx, name)
}
