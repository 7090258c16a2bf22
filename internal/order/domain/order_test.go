package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOrderStatus_ValidAndMutable(t *testing.T) {
	assert.True(t, OrderStatusShipped.Valid())
	assert.False(t, OrderStatus("pendiente").Valid())
	assert.True(t, OrderStatusPending.Mutable())
	assert.False(t, OrderStatusPaid.Mutable())
}

func TestSubtotalAndLinesTotal(t *testing.T) {
	o := Order{Lines: []Line{
		{Quantity: 3, Subtotal: Subtotal(decimal.RequireFromString("19.99"), 3)},
		{Quantity: 1, Subtotal: Subtotal(decimal.NewFromInt(100), 1)},
	}}
	assert.True(t, decimal.RequireFromString("159.97").Equal(o.LinesTotal()))
	assert.True(t, decimal.Zero.Equal(Order{}.LinesTotal()))
}

func TestCaller_CanRead(t *testing.T) {
	o := Order{Owner: 7}
	assert.True(t, Caller{ID: 7}.CanRead(o))
	assert.True(t, Caller{ID: 1, Admin: true}.CanRead(o))
	assert.False(t, Caller{ID: 8}.CanRead(o))
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, 21, PageRequest{Page: 2, Limit: 10})
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 2, p.Page)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 10, PageRequest{Page: 2, Limit: 10}.Offset())
}

func TestPageRequest_Valid(t *testing.T) {
	assert.True(t, PageRequest{Page: 1, Limit: 1}.Valid())
	assert.True(t, PageRequest{Page: 3, Limit: MaxPageLimit}.Valid())
	assert.False(t, PageRequest{Page: 0, Limit: 10}.Valid())
	assert.False(t, PageRequest{Page: 1, Limit: 0}.Valid())
	assert.False(t, PageRequest{Page: 1, Limit: MaxPageLimit + 1}.Valid())
	assert.False(t, PageRequest{Page: 1 << 62, Limit: 4}.Valid())
}
