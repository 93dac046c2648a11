package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "notesync-data", c.DataDir)
	assert.Equal(t, BackendDrive, c.RemoteBackend)
	assert.Equal(t, "notesync_data.json", c.FileName)
	assert.Equal(t, 15*time.Minute, c.SyncInterval)
	assert.Equal(t, 0.1, c.IntervalJitter)
	assert.Equal(t, 3*time.Minute, c.SessionDebounce)
	assert.Equal(t, 30*time.Second, c.RemoteCallTimeout)
	assert.Empty(t, c.DatabaseDSN)
}

func TestLoadConfig_DerivesDSN(t *testing.T) {
	cfg := LoadConfig([]string{"-d", "/tmp/ns"})

	require.NotNil(t, cfg)
	assert.Equal(t, filepath.Join("/tmp/ns", "notes.db"), cfg.DatabaseDSN)

	cfg = LoadConfig([]string{"-d", "/tmp/ns", "-db", "postgres://u@h/db"})
	assert.Equal(t, "postgres://u@h/db", cfg.DatabaseDSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "s3 without bucket", mutate: func(c *Config) { c.RemoteBackend = BackendS3 }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) { c.RemoteBackend = BackendS3; c.S3Bucket = "b" }},
		{name: "unknown backend", mutate: func(c *Config) { c.RemoteBackend = "ftp" }, wantErr: true},
		{name: "empty file name", mutate: func(c *Config) { c.FileName = "" }, wantErr: true},
		{name: "jitter too big", mutate: func(c *Config) { c.IntervalJitter = 1.5 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			if tt.wantErr {
				require.Error(t, c.Validate())
			} else {
				require.NoError(t, c.Validate())
			}
		})
	}
}
