package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "list.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func price(v float64) *float64 { return &v }

func TestAddAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddItem(ctx, "U123", "alice", "Tide PODS", 2, price(21.49), "https://www.target.com/p/tide/-/A-1", "https://img.example/tide.jpg")
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tide PODS", got.ProductTitle)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, "U123", got.UserID)
	assert.Equal(t, domain.StatusActive, got.Status)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 21.49, *got.Price, 0.001)
	assert.False(t, got.AddedAt.IsZero())
}

func TestAddItemDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Quantity is clamped to at least one, price may be absent.
	id, err := s.AddItem(ctx, "U123", "alice", "Bananas", 0, nil, "", "")
	require.NoError(t, err)

	got, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
	assert.Nil(t, got.Price)

	_, err = s.AddItem(ctx, "U123", "alice", "", 1, nil, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGetItemNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetItem(context.Background(), 9999)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestGetActiveItemsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)
	second, err := s.AddItem(ctx, "U2", "bob", "Eggs", 1, nil, "", "")
	require.NoError(t, err)

	items, err := s.GetActiveItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].ID)
	assert.Equal(t, first, items[1].ID)
}

func TestFindItemsByDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "U1", "alice", "OREO Chocolate Sandwich Cookies", 1, nil, "", "")
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "U1", "alice", "Chips Ahoy", 1, nil, "", "")
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "U2", "bob", "Oreo Thins", 1, nil, "", "")
	require.NoError(t, err)

	// Case-insensitive, scoped to the requesting user.
	items, err := s.FindItemsByDescription(ctx, "U1", "oreo")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "OREO Chocolate Sandwich Cookies", items[0].ProductTitle)

	items, err = s.FindItemsByDescription(ctx, "U1", "granola")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteItemOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)

	// Someone else's delete attempt fails and leaves the record untouched.
	err = s.DeleteItem(ctx, id, "U2")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	got, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Milk", got.ProductTitle)

	require.NoError(t, s.DeleteItem(ctx, id, "U1"))
	_, err = s.GetItem(ctx, id)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestDeleteItemWithoutRequesterSkipsOwnershipCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteItem(ctx, id, ""))
}

func TestDeleteItemNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteItem(context.Background(), 404, "U1")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestUpdateItemQuantity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateItemQuantity(ctx, id, 5, "U1"))
	got, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)

	err = s.UpdateItemQuantity(ctx, id, 3, "U2")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUpdateItemQuantityZeroDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddItem(ctx, "U1", "alice", "Milk", 2, nil, "", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateItemQuantity(ctx, id, 0, "U1"))
	_, err = s.GetItem(ctx, id)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestMarkAllOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "U2", "bob", "Eggs", 1, nil, "", "")
	require.NoError(t, err)

	var triggered []domain.ShoppingItem
	count, err := s.MarkAllOrdered(ctx, func(items []domain.ShoppingItem) error {
		triggered = items
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, triggered, 2)

	active, err := s.GetActiveItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMarkAllOrderedTriggerFailureKeepsItemsActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "U1", "alice", "Milk", 1, nil, "", "")
	require.NoError(t, err)

	count, err := s.MarkAllOrdered(ctx, func([]domain.ShoppingItem) error {
		return errors.New("browser automation crashed")
	})
	assert.ErrorIs(t, err, domain.ErrAutomationFailed)
	assert.Zero(t, count)

	active, err := s.GetActiveItems(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1, "a failed order run must not consume the list")
}

func TestMarkAllOrderedEmptyListSkipsTrigger(t *testing.T) {
	s := newTestStore(t)

	called := false
	count, err := s.MarkAllOrdered(context.Background(), func([]domain.ShoppingItem) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, called)
}
