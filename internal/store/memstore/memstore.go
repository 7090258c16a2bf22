// Package memstore is an in-memory implementation of the order, catalog and
// account stores. A single mutex is held for the whole of each transaction,
// so transactions are fully serialized; a failed transaction restores the
// snapshot taken when it began.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
)

type idemKey struct {
	owner domain.UserID
	key   string
}

type state struct {
	categories map[domain.CategoryID]domain.Category
	products   map[domain.ProductID]domain.Product
	users      map[domain.UserID]domain.User
	orders     map[domain.OrderID]domain.Order
	lines      map[domain.OrderID]map[domain.ProductID]domain.Line
	keys       map[idemKey]domain.OrderID
	events     []contracts.Event

	nextCategory, nextProduct, nextUser, nextOrder int64
}

func (s *state) clone() *state {
	cp := *s
	cp.categories = cloneMap(s.categories)
	cp.products = cloneMap(s.products)
	cp.users = cloneMap(s.users)
	cp.orders = cloneMap(s.orders)
	cp.keys = cloneMap(s.keys)
	cp.lines = make(map[domain.OrderID]map[domain.ProductID]domain.Line, len(s.lines))
	for id, ls := range s.lines {
		cp.lines[id] = cloneMap(ls)
	}
	cp.events = append([]contracts.Event(nil), s.events...)
	return &cp
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	cp := make(map[K]V, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var (
	_ order.Store   = (*Store)(nil)
	_ catalog.Store = (*Store)(nil)
	_ account.Store = (*Store)(nil)
)

func New() *Store {
	return &Store{
		st: &state{
			categories: map[domain.CategoryID]domain.Category{},
			products:   map[domain.ProductID]domain.Product{},
			users:      map[domain.UserID]domain.User{},
			orders:     map[domain.OrderID]domain.Order{},
			lines:      map[domain.OrderID]map[domain.ProductID]domain.Line{},
			keys:       map[idemKey]domain.OrderID{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// InTx runs fn with the store locked. Any error or panic from fn discards
// every change fn made.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()
	return fn(ctx, &memTx{s: s})
}

func (s *Store) GetOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadOrder(id)
}

func (s *Store) ListOrders(_ context.Context, owner domain.UserID, page domain.PageRequest) ([]domain.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []domain.OrderID
	for id, o := range s.st.orders {
		if o.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.st.orders[ids[i]], s.st.orders[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	picked := window(ids, page)
	out := make([]domain.Order, 0, len(picked))
	for _, id := range picked {
		o, err := s.loadOrder(id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, len(ids), nil
}

func (s *Store) loadOrder(id domain.OrderID) (domain.Order, error) {
	o, ok := s.st.orders[id]
	if !ok {
		return domain.Order{}, order.ErrNotFound
	}
	o.Lines = make([]domain.Line, 0, len(s.st.lines[id]))
	for _, l := range s.st.lines[id] {
		if p, ok := s.st.products[l.ProductID]; ok {
			l.ProductName = p.Name
			l.ProductImageURL = p.ImageURL
		}
		o.Lines = append(o.Lines, l)
	}
	sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].ProductID < o.Lines[j].ProductID })
	return o, nil
}

// PutProduct inserts or replaces a product, assigning an id when p.ID is
// zero. The category is created on the fly if it does not exist.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CategoryID == 0 {
		p.CategoryID = 1
	}
	if _, ok := s.st.categories[p.CategoryID]; !ok {
		s.st.categories[p.CategoryID] = domain.Category{ID: p.CategoryID, Name: fmt.Sprintf("category-%d", p.CategoryID), CreatedAt: s.now()}
		if int64(p.CategoryID) > s.st.nextCategory {
			s.st.nextCategory = int64(p.CategoryID)
		}
	}
	if p.ID == 0 {
		s.st.nextProduct++
		p.ID = domain.ProductID(s.st.nextProduct)
	} else if int64(p.ID) > s.st.nextProduct {
		s.st.nextProduct = int64(p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.st.products[p.ID] = p
	return p
}

// Product returns the stored product without locking semantics.
func (s *Store) Product(id domain.ProductID) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

// Events returns every event appended by committed transactions.
func (s *Store) Events() []contracts.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.Event(nil), s.st.events...)
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

type memTx struct {
	s *Store
}

func (t *memTx) LockProduct(_ context.Context, id domain.ProductID) (domain.Product, error) {
	p, ok := t.s.st.products[id]
	if !ok {
		return domain.Product{}, order.ErrNotFound
	}
	return p, nil
}

func (t *memTx) AdjustStock(_ context.Context, id domain.ProductID, delta int) error {
	p, ok := t.s.st.products[id]
	if !ok {
		return order.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("stock for product %d would become %d", id, p.Stock+delta)
	}
	p.Stock += delta
	t.s.st.products[id] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	t.s.st.nextOrder++
	now := t.s.now()
	o.ID = domain.OrderID(t.s.st.nextOrder)
	o.CreatedAt, o.UpdatedAt = now, now
	stored := *o
	stored.Lines = nil
	t.s.st.orders[o.ID] = stored
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	o, ok := t.s.st.orders[id]
	if !ok {
		return domain.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (t *memTx) LoadOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	return t.s.loadOrder(id)
}

func (t *memTx) SetOrderTotal(_ context.Context, id domain.OrderID, total decimal.Decimal) error {
	return t.touchOrder(id, func(o *domain.Order) { o.Total = total })
}

func (t *memTx) SetOrderStatus(_ context.Context, id domain.OrderID, status domain.OrderStatus) error {
	return t.touchOrder(id, func(o *domain.Order) { o.Status = status })
}

func (t *memTx) touchOrder(id domain.OrderID, fn func(o *domain.Order)) error {
	o, ok := t.s.st.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	fn(&o)
	o.UpdatedAt = t.s.now()
	t.s.st.orders[id] = o
	return nil
}

func (t *memTx) GetLine(_ context.Context, orderID domain.OrderID, productID domain.ProductID) (domain.Line, error) {
	l, ok := t.s.st.lines[orderID][productID]
	if !ok {
		return domain.Line{}, order.ErrNotFound
	}
	return l, nil
}

func (t *memTx) InsertLine(_ context.Context, l domain.Line) error {
	if _, ok := t.s.st.orders[l.OrderID]; !ok {
		return fmt.Errorf("order %d does not exist", l.OrderID)
	}
	ls := t.s.st.lines[l.OrderID]
	if ls == nil {
		ls = map[domain.ProductID]domain.Line{}
		t.s.st.lines[l.OrderID] = ls
	}
	if _, dup := ls[l.ProductID]; dup {
		return fmt.Errorf("line (%d, %d) already exists", l.OrderID, l.ProductID)
	}
	l.ProductName, l.ProductImageURL = "", ""
	ls[l.ProductID] = l
	return nil
}

func (t *memTx) UpdateLine(_ context.Context, l domain.Line) error {
	ls := t.s.st.lines[l.OrderID]
	if _, ok := ls[l.ProductID]; !ok {
		return order.ErrNotFound
	}
	l.ProductName, l.ProductImageURL = "", ""
	ls[l.ProductID] = l
	return nil
}

func (t *memTx) DeleteLine(_ context.Context, orderID domain.OrderID, productID domain.ProductID) error {
	ls := t.s.st.lines[orderID]
	if _, ok := ls[productID]; !ok {
		return order.ErrNotFound
	}
	delete(ls, productID)
	return nil
}

func (t *memTx) SumLines(_ context.Context, orderID domain.OrderID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, l := range t.s.st.lines[orderID] {
		sum = sum.Add(l.Subtotal)
	}
	return sum, nil
}

func (t *memTx) LookupIdempotencyKey(_ context.Context, owner domain.UserID, key string) (domain.OrderID, error) {
	id, ok := t.s.st.keys[idemKey{owner, key}]
	if !ok {
		return 0, order.ErrNotFound
	}
	return id, nil
}

func (t *memTx) ClaimIdempotencyKey(_ context.Context, owner domain.UserID, key string, id domain.OrderID) error {
	k := idemKey{owner, key}
	if _, taken := t.s.st.keys[k]; taken {
		return order.ErrKeyTaken
	}
	t.s.st.keys[k] = id
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, evt contracts.Event) error {
	t.s.st.events = append(t.s.st.events, evt)
	return nil
}

// window returns the slice of ids covered by page.
func window[T any](all []T, page domain.PageRequest) []T {
	if page.Limit < 1 {
		return nil
	}
	start := page.Offset()
	if start < 0 || start >= len(all) {
		return nil
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
