// Package dbx holds the database plumbing shared by the repositories: the
// DBTX handle satisfied by pools and transactions, transaction helpers
// and the SQL dialect switch between SQLite and PostgreSQL.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is what repositories query through. *sql.DB and *sql.Tx both
// implement it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction on db. The transaction commits when
// fn returns nil and rolls back when it returns an error or panics; the
// panic is re-raised after the rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// WithRepoTx is WithTx for callers that work through a repository. open
// builds the repository over the transaction in the given dialect; fn gets
// both so it can hand the raw transaction to other stores.
//
//	err := dbx.WithRepoTx(ctx, db, dialect, notes.NewSQLRepository,
//		func(ctx context.Context, tx dbx.DBTX, repo *notes.SQLRepository) error {
//			return repo.Upsert(ctx, n)
//		})
func WithRepoTx[R any](ctx context.Context, db *sql.DB, dialect Dialect, open func(DBTX, Dialect) R, fn func(ctx context.Context, tx DBTX, repo R) error) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, tx, open(tx, dialect))
	})
}
