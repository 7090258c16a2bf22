package contracts

import "time"

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   int64          `json:"order_id"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EventOrderCreated       = "order.created"
	EventOrderLinesAdded    = "order.lines_added"
	EventOrderLineUpdated   = "order.line_updated"
	EventOrderLineRemoved   = "order.line_removed"
	EventOrderStatusChanged = "order.status_changed"
)
