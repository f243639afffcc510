package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

func TestFailedTxLeavesStateUntouched(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", Name: "cup", PriceCents: 300, StockQuantity: 4})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx orders.Tx) error {
		after, ok, err := tx.AdjustStock(ctx, "p1", -3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, after)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.InTx(ctx, func(tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 4, p.StockQuantity)
		return nil
	})
}

func TestAdjustStockGuard(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", StockQuantity: 2})
	ctx := context.Background()

	_ = s.InTx(ctx, func(tx orders.Tx) error {
		_, ok, err := tx.AdjustStock(ctx, "p1", -3)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, _ = tx.AdjustStock(ctx, "missing", 1)
		assert.False(t, ok)
		return nil
	})
}

func TestCancelledContextDiscardsTx(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", StockQuantity: 2})
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InTx(ctx, func(tx orders.Tx) error {
		_, _, _ = tx.AdjustStock(ctx, "p1", -2)
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	_ = s.InTx(context.Background(), func(tx orders.Tx) error {
		p, _ := tx.GetProduct(context.Background(), "p1")
		assert.Equal(t, 2, p.StockQuantity)
		return nil
	})
}
