package dbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect Dialect
		out     string
	}{
		{"notes.db", SQLite, "notes.db"},
		{"sqlite://data/notes.db", SQLite, "data/notes.db"},
		{"file:x?mode=memory", SQLite, "file:x?mode=memory"},
		{"postgres://u:p@localhost/notes", Postgres, "postgres://u:p@localhost/notes"},
		{"postgresql://localhost/notes", Postgres, "postgresql://localhost/notes"},
	}
	for _, tt := range tests {
		d, out := ParseDSN(tt.dsn)
		assert.Equal(t, tt.dialect, d, tt.dsn)
		assert.Equal(t, tt.out, out, tt.dsn)
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := `INSERT INTO notes (id, title) VALUES (?, '?') ON CONFLICT(id) DO UPDATE SET x = ?`

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t,
		`INSERT INTO notes (id, title) VALUES ($1, '?') ON CONFLICT(id) DO UPDATE SET x = $2`,
		Postgres.Rebind(q))
}

func TestDialect_Names(t *testing.T) {
	assert.Equal(t, "sqlite", SQLite.DriverName())
	assert.Equal(t, "pgx", Postgres.DriverName())
	assert.Equal(t, "sqlite3", SQLite.GooseDialect())
	assert.Equal(t, "postgres", Postgres.GooseDialect())
}
