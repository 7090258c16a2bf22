package tx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeDB struct {
	txs      []*fakeTx
	beginErr error
}

func (f *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	t := &fakeTx{}
	f.txs = append(f.txs, t)
	return t, nil
}

func TestRun_commitsOnSuccess(t *testing.T) {
	db := &fakeDB{}
	err := Run(context.Background(), db, Options{}, func(pgx.Tx) error { return nil })

	require.NoError(t, err)
	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].committed)
	assert.False(t, db.txs[0].rolledBack)
}

func TestRun_rollsBackOnError(t *testing.T) {
	db := &fakeDB{}
	boom := errors.New("boom")
	err := Run(context.Background(), db, Options{MaxRetries: 3}, func(pgx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	require.Len(t, db.txs, 1, "non-retryable errors are not replayed")
	assert.False(t, db.txs[0].committed)
	assert.True(t, db.txs[0].rolledBack)
}

func TestRun_rollsBackAndRepanics(t *testing.T) {
	db := &fakeDB{}
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = Run(context.Background(), db, Options{}, func(pgx.Tx) error { panic("kaboom") })
	})
	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].rolledBack)
}

func TestRun_retriesSerializationFailures(t *testing.T) {
	db := &fakeDB{}
	var retries []int
	calls := 0
	err := Run(context.Background(), db, Options{
		MaxRetries: 3,
		OnRetry:    func(attempt int, _ error) { retries = append(retries, attempt) },
	}, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("lock product: %w", &pgconn.PgError{Code: codeDeadlockDetected})
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
	require.Len(t, db.txs, 3)
	assert.True(t, db.txs[0].rolledBack)
	assert.True(t, db.txs[2].committed)
}

func TestRun_givesUpAfterMaxRetries(t *testing.T) {
	db := &fakeDB{}
	err := Run(context.Background(), db, Options{MaxRetries: 2}, func(pgx.Tx) error {
		return &pgconn.PgError{Code: codeSerializationFailure}
	})

	assert.True(t, IsRetryable(err))
	assert.Len(t, db.txs, 3)
}

func TestRun_beginFailure(t *testing.T) {
	db := &fakeDB{beginErr: errors.New("pool closed")}
	err := Run(context.Background(), db, Options{}, func(pgx.Tx) error { return nil })
	assert.ErrorContains(t, err, "begin tx")
}

func TestRun_commitFailureIsReported(t *testing.T) {
	err := Run(context.Background(), commitFailDB{}, Options{}, func(pgx.Tx) error { return nil })
	assert.ErrorContains(t, err, "commit tx")
}

type commitFailDB struct{}

func (commitFailDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{commitErr: errors.New("connection reset")}, nil
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("duplicate")))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
