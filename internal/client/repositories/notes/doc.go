// Package notes provides the local persistence layer for notes.
//
// # Overview
//
// Repository is the read/write contract the sync engine relies on. SQLRepository
// implements it over a dbx.DBTX (either *sql.DB or *sql.Tx) for both the
// SQLite and the PostgreSQL backends; the dialect only changes placeholder
// syntax.
//
// # Data Model
//
// A row holds the note's logical version (version_ms), its tombstone marker
// (is_deleted, deleted_ms), its scope and the opaque presentation fields as a
// JSON object (extra). Tombstones are regular rows; nothing here filters them
// unless the caller asks to.
//
// Typical Usage
//
//	repo := notes.NewSQLRepository(db, dbx.SQLite)
//	_ = repo.Upsert(ctx, note)
//	all, _ := repo.GetAll(ctx, true)
//	one, _ := repo.GetByID(ctx, id)
package notes
