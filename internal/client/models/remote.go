package models

import (
	"fmt"
	"strings"
	"time"
)

// StorageLocation is where the remote snapshot lives. The two syncable
// locations are mutually exclusive; LocationDisabled turns sync off.
type StorageLocation string

const (
	LocationUnset    StorageLocation = ""
	LocationHidden   StorageLocation = "hidden"
	LocationVisible  StorageLocation = "visible"
	LocationDisabled StorageLocation = "disabled"
)

// ParseStorageLocation accepts the canonical names plus the names used by
// older clients ("appDataFolder", "visibleFolder", "localOnly").
func ParseStorageLocation(s string) (StorageLocation, error) {
	switch strings.TrimSpace(s) {
	case "":
		return LocationUnset, nil
	case "hidden", "appDataFolder":
		return LocationHidden, nil
	case "visible", "visibleFolder":
		return LocationVisible, nil
	case "disabled", "localOnly":
		return LocationDisabled, nil
	default:
		return LocationUnset, fmt.Errorf("unknown storage location %q", s)
	}
}

// Syncable reports whether the location names an actual remote place.
func (l StorageLocation) Syncable() bool {
	return l == LocationHidden || l == LocationVisible
}

// RemoteFile references the remote snapshot file.
type RemoteFile struct {
	ID           string
	Name         string
	ModifiedTime time.Time
	Location     StorageLocation
}

// Credential is whatever the remote backend needs to authenticate. The
// Drive backend uses AccessToken, the S3 backend the key pair.
type Credential struct {
	AccessToken     string    `json:"access_token,omitempty"`
	AccessKeyID     string    `json:"access_key_id,omitempty"`
	SecretAccessKey string    `json:"secret_access_key,omitempty"`
	Expiry          time.Time `json:"expiry,omitzero"`
}

func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.AccessKeyID == "" && c.SecretAccessKey == ""
}
