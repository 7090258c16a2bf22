package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jlpozo/DesafioFinalBack/internal/notify"
	"github.com/jlpozo/DesafioFinalBack/pkg/tx"
)

var _ notify.Store = (*Store)(nil)

// RecordNotification stores n unless its event was already seen. The inbox
// row and the notification commit together.
func (s *Store) RecordNotification(ctx context.Context, n notify.Notification) (bool, error) {
	recorded := false
	err := tx.Run(ctx, s.pool, s.txOpts, func(t pgx.Tx) error {
		tag, err := t.Exec(ctx, `INSERT INTO inbox(event_id) VALUES ($1) ON CONFLICT DO NOTHING`, n.EventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = t.Exec(ctx, `INSERT INTO notifications(event_id, order_id, owner_id, kind, message) VALUES ($1, $2, $3, $4, $5)`,
			n.EventID, n.OrderID, n.OwnerID, n.Kind, n.Message)
		if err != nil {
			return err
		}
		recorded = true
		return nil
	})
	return recorded, err
}
