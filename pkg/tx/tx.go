// Package tx runs a function inside a database transaction that is always
// finished: committed when the function returns nil, rolled back on error or
// panic.
package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Beginner is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type Options struct {
	TxOptions pgx.TxOptions
	// MaxRetries bounds how many times fn is re-run after a serialization
	// failure or deadlock. Zero means a single attempt.
	MaxRetries int
	OnRetry    func(attempt int, err error)
}

func Run(ctx context.Context, db Beginner, opts Options, fn func(pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := runOnce(ctx, db, opts.TxOptions, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= opts.MaxRetries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}
	}
}

func runOnce(ctx context.Context, db Beginner, txOpts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	t, err := db.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = t.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			// The rollback uses a fresh context so a cancelled request still
			// releases its locks.
			_ = t.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(t); err != nil {
		return err
	}
	if err = t.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient conflict after which the
// whole transaction may be replayed.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
