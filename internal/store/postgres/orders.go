package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
	"github.com/jlpozo/DesafioFinalBack/pkg/outbox"
	"github.com/jlpozo/DesafioFinalBack/pkg/tx"
)

const DefaultTopic = "storefront.orders"

type Store struct {
	pool   *pgxpool.Pool
	topic  string
	txOpts tx.Options
}

type Option func(*Store)

// WithTopic sets the broker topic recorded on outbox rows.
func WithTopic(topic string) Option {
	return func(s *Store) { s.topic = topic }
}

// WithRetries re-runs a transaction up to n times after a serialization
// failure or deadlock, calling onRetry before each attempt.
func WithRetries(n int, onRetry func()) Option {
	return func(s *Store) {
		s.txOpts.MaxRetries = n
		if onRetry != nil {
			s.txOpts.OnRetry = func(int, error) { onRetry() }
		}
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		topic:  DefaultTopic,
		txOpts: tx.Options{TxOptions: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ order.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, t order.Tx) error) error {
	return tx.Run(ctx, s.pool, s.txOpts, func(t pgx.Tx) error {
		return fn(ctx, &pgTx{tx: t, topic: s.topic})
	})
}

func (s *Store) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return loadOrder(ctx, s.pool, id)
}

func (s *Store) ListOrders(ctx context.Context, owner domain.UserID, page domain.PageRequest) ([]domain.Order, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE owner_id=$1`, int64(owner)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE owner_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		int64(owner), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(r)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[domain.OrderID]int, len(orders))
	for i, o := range orders {
		ids[i] = int64(o.ID)
		index[o.ID] = i
		orders[i].Lines = []domain.Line{}
	}
	lines, err := queryLines(ctx, s.pool, `WHERE l.order_id = ANY($1)`, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, l := range lines {
		i := index[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return orders, total, nil
}

type pgTx struct {
	tx    pgx.Tx
	topic string
}

func (t *pgTx) LockProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRow(ctx, `SELECT id, name, price, stock, image_url, category_id
		FROM products WHERE id=$1 FOR UPDATE`, int64(id)).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageURL, &p.CategoryID)
	if err != nil {
		return domain.Product{}, notFound(err, order.ErrNotFound)
	}
	return p, nil
}

func (t *pgTx) AdjustStock(ctx context.Context, id domain.ProductID, delta int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, int64(id), delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	return t.tx.QueryRow(ctx, `INSERT INTO orders(owner_id, status, total, shipping_address)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		int64(o.Owner), string(o.Status), o.Total, o.ShippingAddress).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (t *pgTx) LockOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, int64(id)))
	if err != nil {
		return domain.Order{}, notFound(err, order.ErrNotFound)
	}
	return o, nil
}

func (t *pgTx) LoadOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return loadOrder(ctx, t.tx, id)
}

func (t *pgTx) SetOrderTotal(ctx context.Context, id domain.OrderID, total decimal.Decimal) error {
	return t.execOne(ctx, `UPDATE orders SET total=$2, updated_at=now() WHERE id=$1`, int64(id), total)
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	return t.execOne(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, int64(id), string(status))
}

func (t *pgTx) GetLine(ctx context.Context, orderID domain.OrderID, productID domain.ProductID) (domain.Line, error) {
	var l domain.Line
	err := t.tx.QueryRow(ctx, `SELECT order_id, product_id, quantity, unit_price, subtotal
		FROM order_lines WHERE order_id=$1 AND product_id=$2`, int64(orderID), int64(productID)).
		Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal)
	if err != nil {
		return domain.Line{}, notFound(err, order.ErrNotFound)
	}
	return l, nil
}

func (t *pgTx) InsertLine(ctx context.Context, l domain.Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_lines(order_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)`,
		int64(l.OrderID), int64(l.ProductID), l.Quantity, l.UnitPrice, l.Subtotal)
	return err
}

func (t *pgTx) UpdateLine(ctx context.Context, l domain.Line) error {
	return t.execOne(ctx, `UPDATE order_lines SET quantity=$3, subtotal=$4 WHERE order_id=$1 AND product_id=$2`,
		int64(l.OrderID), int64(l.ProductID), l.Quantity, l.Subtotal)
}

func (t *pgTx) DeleteLine(ctx context.Context, orderID domain.OrderID, productID domain.ProductID) error {
	return t.execOne(ctx, `DELETE FROM order_lines WHERE order_id=$1 AND product_id=$2`, int64(orderID), int64(productID))
}

func (t *pgTx) SumLines(ctx context.Context, orderID domain.OrderID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(subtotal), 0) FROM order_lines WHERE order_id=$1`, int64(orderID)).Scan(&sum)
	return sum, err
}

func (t *pgTx) LookupIdempotencyKey(ctx context.Context, owner domain.UserID, key string) (domain.OrderID, error) {
	var id domain.OrderID
	err := t.tx.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE owner_id=$1 AND idempotency_key=$2`,
		int64(owner), key).Scan(&id)
	if err != nil {
		return 0, notFound(err, order.ErrNotFound)
	}
	return id, nil
}

// ClaimIdempotencyKey waits on a concurrent claim of the same key and reports
// ErrKeyTaken if that claim committed.
func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, owner domain.UserID, key string, id domain.OrderID) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO order_idempotency(owner_id, idempotency_key, order_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, int64(owner), key, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return order.ErrKeyTaken
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt contracts.Event) error {
	return outbox.Append(ctx, t.tx, t.topic, evt)
}

func (t *pgTx) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

const orderColumns = `id, owner_id, status, total, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.Owner, &status, &o.Total, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func loadOrder(ctx context.Context, q querier, id domain.OrderID) (domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, int64(id)))
	if err != nil {
		return domain.Order{}, notFound(err, order.ErrNotFound)
	}
	o.Lines, err = queryLines(ctx, q, `WHERE l.order_id = $1`, int64(id))
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// queryLines returns lines with the product fields shown alongside them,
// ordered by order then product.
func queryLines(ctx context.Context, q querier, where string, args ...any) ([]domain.Line, error) {
	rows, err := q.Query(ctx, `SELECT l.order_id, l.product_id, l.quantity, l.unit_price, l.subtotal, p.name, p.image_url
		FROM order_lines l JOIN products p ON p.id = l.product_id `+where+`
		ORDER BY l.order_id, l.product_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Line, error) {
		var l domain.Line
		err := r.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.ProductName, &l.ProductImageURL)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	if lines == nil {
		lines = []domain.Line{}
	}
	return lines, nil
}
