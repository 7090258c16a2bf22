// Package outbox stores events in the same transaction as the state change
// that produced them; Relay forwards committed rows to the broker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
)

type Record struct {
	ID        int64           `db:"id"`
	EventID   string          `db:"event_id"`
	Topic     string          `db:"topic"`
	Key       string          `db:"key"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so rows
// can be written inside the caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Append stores evt for topic. The message key is the order id, so every
// event of one order lands on the same partition in commit order.
func Append(ctx context.Context, db Querier, topic string, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.EventID, err)
	}
	_, err = db.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		evt.EventID, topic, strconv.FormatInt(evt.OrderID, 10), data)
	return err
}

// FetchPending returns up to limit unsent rows, oldest first.
func FetchPending(ctx context.Context, db Querier, limit int) ([]Record, error) {
	rows, err := db.Query(ctx, `SELECT id, event_id, topic, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Record])
}

func MarkSent(ctx context.Context, db Querier, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1) AND sent_at IS NULL`, ids)
	return err
}

// PGSource adapts the package functions to the Relay's Source.
type PGSource struct {
	DB Querier
}

func (s PGSource) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.DB, limit)
}

func (s PGSource) MarkSent(ctx context.Context, ids ...int64) error {
	return MarkSent(ctx, s.DB, ids...)
}
