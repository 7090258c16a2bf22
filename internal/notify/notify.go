// Package notify turns order events into customer notifications. Each event
// is recorded at most once, keyed by its event id.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
)

const service = "notification-service"

type Notification struct {
	EventID string
	OrderID int64
	OwnerID int64
	Kind    string
	Message string
}

type Store interface {
	// RecordNotification returns false when the event was already recorded.
	RecordNotification(ctx context.Context, n Notification) (bool, error)
}

var ErrMalformed = errors.New("malformed event")

// Build derives the notification for one event.
func Build(evt contracts.Event) (Notification, error) {
	if evt.EventID == "" || evt.OrderID <= 0 {
		return Notification{}, ErrMalformed
	}
	n := Notification{
		EventID: evt.EventID,
		OrderID: evt.OrderID,
		OwnerID: int64Field(evt.Payload, "owner_id"),
		Kind:    evt.Type,
	}
	total, _ := evt.Payload["total"].(string)
	switch evt.Type {
	case contracts.EventOrderCreated:
		n.Message = fmt.Sprintf("Order #%d was placed. Total: %s", evt.OrderID, total)
	case contracts.EventOrderLinesAdded:
		n.Message = fmt.Sprintf("Products were added to order #%d. New total: %s", evt.OrderID, total)
	case contracts.EventOrderLineUpdated:
		n.Message = fmt.Sprintf("A quantity changed on order #%d. New total: %s", evt.OrderID, total)
	case contracts.EventOrderLineRemoved:
		n.Message = fmt.Sprintf("A product was removed from order #%d. New total: %s", evt.OrderID, total)
	case contracts.EventOrderStatusChanged:
		status, _ := evt.Payload["status"].(string)
		n.Message = fmt.Sprintf("Order #%d is now %s", evt.OrderID, status)
	default:
		return Notification{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, evt.Type)
	}
	return n, nil
}

type Handler struct {
	Store Store
}

// Handle decodes and records one message. Malformed messages are logged and
// skipped so they do not block the partition.
func (h *Handler) Handle(ctx context.Context, value []byte) error {
	var evt contracts.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		logging.Log(logging.Fields{Service: service, Step: "decode", Status: "skipped", Err: err})
		return nil
	}
	n, err := Build(evt)
	if err != nil {
		logging.Log(logging.Fields{Service: service, EventID: evt.EventID, Step: "build", Status: "skipped", Err: err})
		return nil
	}
	recorded, err := h.Store.RecordNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("record %s: %w", n.EventID, err)
	}
	status := "emitted"
	if !recorded {
		status = "duplicate"
	}
	logging.Log(logging.Fields{
		Service: service,
		OrderID: strconv.FormatInt(n.OrderID, 10),
		EventID: n.EventID,
		Step:    n.Kind,
		Status:  status,
	})
	return nil
}

// Reader is the part of *kafka.Reader used by Consume.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consume handles messages until ctx is cancelled. An offset is committed
// only after its message was handled, so a failure redelivers it.
func Consume(ctx context.Context, r Reader, h *Handler, backoff time.Duration) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Log(logging.Fields{Service: service, Step: "fetch", Status: "error", Err: err})
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}
		for {
			err := h.Handle(ctx, msg.Value)
			if err == nil {
				break
			}
			logging.Log(logging.Fields{Service: service, Step: "handle", Status: "retry", Err: err})
			if !sleep(ctx, backoff) {
				return
			}
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logging.Log(logging.Fields{Service: service, Step: "commit", Status: "error", Err: err})
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
