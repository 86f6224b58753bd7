package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 3

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ Beginner = (*pgxpool.Pool)(nil)

// WithTx executes a function within a ReadCommitted transaction. Row locks
// taken inside fn serialize writers per record; ReadCommitted re-reads the
// committed row after a lock wait instead of failing on a stale snapshot.
// A serialization conflict (SQLSTATE 40001) is still retried, so callers
// that escalate isolation downstream get the same contract.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = runTx(ctx, pool, fn)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// retryable reports whether the transaction died on a transient
// serialization conflict and can be re-run from the top.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
