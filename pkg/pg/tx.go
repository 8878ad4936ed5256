package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Beginner starts a transaction. Satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunInTx runs fn inside a transaction and commits it when fn returns nil.
// The transaction is rolled back when fn returns an error or panics; the
// panic is re-raised after rollback.
func RunInTx(ctx context.Context, db Beginner, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrTxFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Join(ErrTxFailed, err)
	}
	return nil
}
