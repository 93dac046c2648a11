package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const noteColumns = `id, version_ms, title, content, is_deleted, deleted_ms, scope_type, scope_value, extra`

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func (r *SQLRepository) Upsert(ctx context.Context, n models.Note) error {
	extra, err := encodeExtra(n.Extra)
	if err != nil {
		return fmt.Errorf("failed to encode note %s: %w", n.ID, err)
	}

	query := `INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version_ms = excluded.version_ms,
			title = excluded.title,
			content = excluded.content,
			is_deleted = excluded.is_deleted,
			deleted_ms = excluded.deleted_ms,
			scope_type = excluded.scope_type,
			scope_value = excluded.scope_value,
			extra = excluded.extra`

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		n.ID, n.Timestamp, n.Title, n.Content, boolToInt(n.IsDeleted), nullableInt(n.DeletedTimestamp),
		n.ScopeType, n.ScopeValue, extra)
	if err != nil {
		return fmt.Errorf("failed to upsert note %s: %w", n.ID, err)
	}
	return nil
}

func (r *SQLRepository) GetAll(ctx context.Context, includeTombstones bool) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	if !includeTombstones {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	return scanNotes(rows)
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = ?`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id)

	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

func (r *SQLRepository) GetForScope(ctx context.Context, scopeType, scopeValue string, includeTombstones bool) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE scope_type = ? AND scope_value = ?`
	if !includeTombstones {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), scopeType, scopeValue)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes for scope %s/%s: %w", scopeType, scopeValue, err)
	}
	return scanNotes(rows)
}

func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM notes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n         models.Note
		isDeleted int64
		deleted   sql.NullInt64
		extra     string
	)
	if err := s.Scan(&n.ID, &n.Timestamp, &n.Title, &n.Content, &isDeleted, &deleted,
		&n.ScopeType, &n.ScopeValue, &extra); err != nil {
		return nil, err
	}
	n.IsDeleted = isDeleted != 0
	if deleted.Valid {
		ts := deleted.Int64
		n.DeletedTimestamp = &ts
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &n.Extra); err != nil {
			return nil, fmt.Errorf("note %s has corrupt extra fields: %w", n.ID, err)
		}
	}
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()

	result := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	return result, nil
}

func encodeExtra(extra map[string]json.RawMessage) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
