package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

const (
	BackendDrive = "drive"
	BackendS3    = "s3"
)

// Config holds runtime settings shared by the notesync REPL and the
// notesyncd daemon.
//
// DatabaseDSN is either a SQLite path (default <DataDir>/notes.db) or a
// postgres:// URL. Credential, when set, pre-seeds the credential cache.
type Config struct {
	DataDir     string
	DatabaseDSN string

	RemoteBackend   string
	FileName        string
	FolderName      string
	DriveAPIBaseURL string
	S3Region        string
	S3Bucket        string
	S3BaseEndpoint  string
	Credential      models.Credential

	SyncInterval        time.Duration
	IntervalJitter      float64
	SessionDebounce     time.Duration
	LocalChangeDebounce time.Duration
	CycleTimeout        time.Duration
	RemoteCallTimeout   time.Duration

	StatusAddr string
	HealthAddr string

	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "notesync-data"
	c.RemoteBackend = BackendDrive
	c.FileName = "notesync_data.json"
	c.FolderName = "NoteSync"
	c.DriveAPIBaseURL = "https://www.googleapis.com"
	c.SyncInterval = 15 * time.Minute
	c.IntervalJitter = 0.1
	c.SessionDebounce = 3 * time.Minute
	c.LocalChangeDebounce = 5 * time.Second
	c.CycleTimeout = 2 * time.Minute
	c.RemoteCallTimeout = 30 * time.Second
	c.StatusAddr = "127.0.0.1:8737"
	c.HealthAddr = "127.0.0.1:8738"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. Invalid input panics.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	cfg.fillDerived()
	return cfg
}

func (c *Config) fillDerived() {
	if c.DatabaseDSN == "" {
		c.DatabaseDSN = filepath.Join(c.DataDir, "notes.db")
	}
}

// Validate checks the settings the sync engine cannot run without.
func (c *Config) Validate() error {
	switch c.RemoteBackend {
	case BackendDrive:
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 backend needs a bucket")
		}
	default:
		return fmt.Errorf("unknown remote backend %q", c.RemoteBackend)
	}
	if c.FileName == "" {
		return fmt.Errorf("remote file name is empty")
	}
	if c.IntervalJitter < 0 || c.IntervalJitter > 1 {
		return fmt.Errorf("interval jitter %v out of range [0,1]", c.IntervalJitter)
	}
	return nil
}
