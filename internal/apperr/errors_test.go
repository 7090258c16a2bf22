package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("append lines: %w", Newf(KindInsufficientStock, "insufficient stock for product %d", 2).WithKey(2))

	assert.True(t, errors.Is(err, InsufficientStock))
	assert.False(t, errors.Is(err, DuplicateLine))
	assert.Equal(t, KindInsufficientStock, KindOf(err))
}

func TestError_IsDoesNotMatchSpecificMessages(t *testing.T) {
	a := New(KindNotFound, "category not found")
	b := New(KindNotFound, "product not found")
	assert.False(t, errors.Is(a, b))
}

func TestWithKey_copies(t *testing.T) {
	base := New(KindOrderNotFound, "order not found")
	keyed := base.WithKey(int64(9))

	assert.Equal(t, "9", keyed.Key)
	assert.Empty(t, base.Key)
	assert.Equal(t, "order not found", keyed.Error())
}

func TestKindOf_plainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInvalidInput, "INVALID_INPUT"},
		{KindDuplicateLine, "DUPLICATE_LINE"},
		{KindInvalidState, "INVALID_STATE"},
		{Kind(99), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
