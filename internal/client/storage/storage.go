// Package storage opens the local database, applies migrations and wires the
// repositories on top of it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/migrations"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Store bundles the database handle with its repositories.
type Store struct {
	DB       *sql.DB
	Dialect  dbx.Dialect
	Notes    notes.Repository
	Metadata metadata.Repository
}

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	sub, err := fs.Sub(migrations.FS, string(dialect))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", dialect, err)
	}

	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.GooseDialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open connects to dsn (a SQLite path/URI or a postgres:// URL), migrates
// the schema and returns the wired Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect, target := dbx.ParseDSN(dsn)
	if dialect == dbx.SQLite {
		target = sqliteDSN(target)
	}

	db, err := sql.Open(dialect.DriverName(), target)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == dbx.SQLite {
		// one writer at a time; WAL lets readers in other processes proceed
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return New(db, dialect), nil
}

// New wires repositories over an already migrated database.
func New(db *sql.DB, dialect dbx.Dialect) *Store {
	return &Store{
		DB:       db,
		Dialect:  dialect,
		Notes:    notes.NewSQLRepository(db, dialect),
		Metadata: metadata.NewSQLRepository(db, dialect),
	}
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// sqliteDSN adds busy timeout and WAL pragmas to plain file paths.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// SQLiteFile returns the database file path for a SQLite DSN, or "" for
// Postgres and in-memory databases.
func SQLiteFile(dsn string) string {
	dialect, target := dbx.ParseDSN(dsn)
	if dialect != dbx.SQLite || target == ":memory:" || strings.Contains(target, "mode=memory") {
		return ""
	}
	target = strings.TrimPrefix(target, "file:")
	if i := strings.Index(target, "?"); i >= 0 {
		target = target[:i]
	}
	return target
}
