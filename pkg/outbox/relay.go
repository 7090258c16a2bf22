package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
)

type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids ...int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Relay moves committed outbox rows to the broker. Delivery is at least once:
// a crash between Publish and MarkSent republishes the row, and consumers
// dedupe on event_id.
type Relay struct {
	Source    Source
	Publisher Publisher
	Interval  time.Duration
	BatchSize int
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			logging.Log(logging.Fields{Service: "outbox-relay", Step: "drain", Status: "error", Err: err})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch in id order and stops at the first failure so
// per-order ordering is preserved. Rows published before a failure are still
// marked sent.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Source.FetchPending(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	sent := make([]int64, 0, len(recs))
	var pubErr error
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			pubErr = fmt.Errorf("publish %s: %w", rec.EventID, err)
			break
		}
		sent = append(sent, rec.ID)
		logging.Log(logging.Fields{Service: "outbox-relay", OrderID: rec.Key, EventID: rec.EventID, Step: "publish", Status: "sent"})
	}
	if err := r.Source.MarkSent(ctx, sent...); err != nil {
		return 0, fmt.Errorf("mark sent: %w", err)
	}
	return len(sent), pubErr
}
