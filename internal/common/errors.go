// Package common defines sentinel errors shared by the local store, the
// remote backends and the sync engine. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Local repository errors.
	ErrNotFound = errors.New("not found")

	// No usable credential could be obtained.
	ErrAuth = errors.New("authentication failed")

	// The storage location has not been chosen yet.
	ErrPreferenceUnset = errors.New("storage location not set")

	// Sync has been switched off by the user.
	ErrSyncDisabled = errors.New("sync disabled")

	// The remote file (or the id we hold for it) does not exist.
	ErrRemoteNotFound = errors.New("remote file not found")

	// Remote content is not a valid snapshot.
	ErrParse = errors.New("remote data structure invalid")

	// An internal safety check refused to proceed.
	ErrConsistency = errors.New("inconsistent sync state")

	// The remote rejected the credential; it must be re-resolved.
	ErrCredentialExpired = &CredentialExpiredError{}
)

// CredentialExpiredError is returned when the remote rejects a credential
// that used to work. It matches both ErrCredentialExpired and ErrAuth.
type CredentialExpiredError struct {
	StatusCode int
	Reason     string
}

func (e *CredentialExpiredError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("credential expired (status %d): %s", e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("credential expired (status %d)", e.StatusCode)
	case e.Reason != "":
		return "credential expired: " + e.Reason
	default:
		return "credential expired"
	}
}

func (e *CredentialExpiredError) Is(target error) bool {
	if target == ErrAuth {
		return true
	}
	_, ok := target.(*CredentialExpiredError)
	return ok
}
