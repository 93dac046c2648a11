package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.DatabaseDSN = filepath.Join(cfg.DataDir, "notes.db")
	cfg.StatusAddr = "127.0.0.1:0"
	cfg.HealthAddr = "127.0.0.1:0"
	cfg.SyncInterval = time.Hour
	cfg.CycleTimeout = 5 * time.Second
	return cfg
}

func TestNewApp_SingleInstance(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := NewApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)

	_, err = NewApp(ctx, cfg, logging.NewNop())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	first.close()

	again, err := NewApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	again.close()
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// the lock is released on exit
	next, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	next.close()
}

func TestNewApp_BadBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.RemoteBackend = "ftp"

	_, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)

	cfg.RemoteBackend = config.BackendDrive
	app, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err, "a failed start releases the lock")
	assert.NotNil(t, app.rt.Engine)
	app.close()
}
