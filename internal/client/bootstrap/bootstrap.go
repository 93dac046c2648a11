// Package bootstrap turns a Config into a ready sync engine over the local
// store. Both the REPL and the daemon start here.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/notesync/internal/client/auth"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/storage"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

type Runtime struct {
	DataDir string
	// DBFile is the SQLite file, empty for Postgres.
	DBFile string
	// SyncLock serializes sync cycles of every process using DataDir.
	SyncLock string

	Store  *storage.Store
	State  *syncstate.Store
	Notes  services.NoteService
	Auth   *auth.FileProvider
	Engine *syncer.Engine
}

// RemoteFactory picks the remote backend named by cfg.RemoteBackend.
func RemoteFactory(cfg *config.Config) (remote.Factory, error) {
	switch cfg.RemoteBackend {
	case config.BackendDrive:
		return remote.NewDriveFactory(remote.DriveOptions{
			BaseURL:    cfg.DriveAPIBaseURL,
			FolderName: cfg.FolderName,
		}), nil
	case config.BackendS3:
		return remote.NewS3Factory(remote.S3Options{
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
			FolderName:   cfg.FolderName,
		}), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}

// Open prepares the data directory, migrates the database and builds the
// engine. prompter may be nil for non-interactive processes.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger, prompter auth.Prompter, pub syncer.Publisher) (*Runtime, error) {
	factory, err := RemoteFactory(cfg)
	if err != nil {
		return nil, err
	}

	dataDir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	dbFile := storage.SQLiteFile(cfg.DatabaseDSN)
	if dbFile != "" {
		if _, err := filex.EnsureDir(filepath.Dir(dbFile)); err != nil {
			return nil, fmt.Errorf("database dir: %w", err)
		}
	}

	st, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	provider := auth.NewFileProvider(dataDir, prompter, log.With("component", "auth"))
	if err := provider.Seed(cfg.Credential); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed credential: %w", err)
	}

	syncLock := filepath.Join(dataDir, syncer.LockFile)
	state := syncstate.New(st.DB, st.Dialect)
	notes := services.NewNoteService(st.DB, st.Dialect, state)
	engine := syncer.New(notes, state, provider, factory, pub, log.With("component", "syncer"), syncer.Options{
		FileName:          cfg.FileName,
		RemoteCallTimeout: cfg.RemoteCallTimeout,
		LockPath:          syncLock,
	})

	log.Info(ctx, "local store ready", "dsn_kind", string(st.Dialect), "data_dir", dataDir, "backend", cfg.RemoteBackend)

	return &Runtime{
		DataDir:  dataDir,
		DBFile:   dbFile,
		SyncLock: syncLock,
		Store:    st,
		State:    state,
		Notes:    notes,
		Auth:     provider,
		Engine:   engine,
	}, nil
}

func (r *Runtime) Close() error {
	return r.Store.Close()
}
