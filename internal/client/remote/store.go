// Package remote talks to the cloud file service that holds the snapshot.
// Two backends are provided: Google Drive (REST v3) and any S3-compatible
// object store. Both report a missing file as common.ErrRemoteNotFound and a
// rejected credential as common.ErrCredentialExpired.
package remote

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Store is the remote file service contract.
type Store interface {
	// FindByName lists files called name in loc, newest first.
	FindByName(ctx context.Context, name string, loc models.StorageLocation) ([]models.RemoteFile, error)

	// GetMetadata returns common.ErrRemoteNotFound when id does not exist.
	GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error)

	// Download returns common.ErrRemoteNotFound when id does not exist.
	Download(ctx context.Context, id string) ([]byte, error)

	// Upload replaces targetID, or creates a new file in loc when targetID
	// is empty.
	Upload(ctx context.Context, name string, content []byte, targetID string, loc models.StorageLocation) (models.RemoteFile, error)

	// EnsureFolder returns the id of the visible folder, creating it if
	// needed.
	EnsureFolder(ctx context.Context, name string) (string, error)
}

// Factory builds a Store bound to one credential.
type Factory func(ctx context.Context, cred models.Credential) (Store, error)

// SortNewestFirst orders files by modification time, most recent first.
func SortNewestFirst(files []models.RemoteFile) {
	slices.SortStableFunc(files, func(a, b models.RemoteFile) int {
		return b.ModifiedTime.Compare(a.ModifiedTime)
	})
}
