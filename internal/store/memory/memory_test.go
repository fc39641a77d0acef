package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possale/backend/internal/domain"
	"possale/backend/internal/store"
)

func TestWithinTxRollsBackEveryWrite(t *testing.T) {
	s := NewSeeded(nil)
	ctx := context.Background()
	before, err := s.GetProduct(ctx, "prod-tea")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.ReserveStock(ctx, "prod-tea", 5))
		require.NoError(t, tx.IncrementDiscountUsage(ctx, "disc-welcome"))
		require.NoError(t, tx.AppendInventory(ctx, domain.InventoryTransaction{ProductID: "prod-tea", Quantity: -5}))
		require.NoError(t, tx.InsertSale(ctx, domain.Sale{ID: "s1", InvoiceNumber: "INV-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := s.GetProduct(ctx, "prod-tea")
	require.NoError(t, err)
	assert.Equal(t, before.StockQuantity, after.StockQuantity)

	d, err := s.GetDiscount(ctx, "disc-welcome")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsedCount)

	entries, err := s.ListInventory(ctx, "prod-tea")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.GetSale(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReserveStockNeverGoesNegative(t *testing.T) {
	s := NewSeeded(nil)
	ctx := context.Background()

	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.ReserveStock(ctx, "prod-rice", 1)
			})
			if err == nil {
				atomic.AddInt64(&ok, 1)
			} else {
				assert.ErrorIs(t, err, store.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	p, err := s.GetProduct(ctx, "prod-rice")
	require.NoError(t, err)
	assert.Equal(t, int64(25), ok)
	assert.Equal(t, 0, p.StockQuantity)
}

func TestIncrementDiscountUsageRespectsLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	limit := 1
	require.NoError(t, s.CreateDiscount(ctx, domain.Discount{ID: "d", Name: "once", UsageLimit: &limit, IsActive: true}))

	inc := func() error {
		return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.IncrementDiscountUsage(ctx, "d")
		})
	}
	require.NoError(t, inc())
	assert.ErrorIs(t, inc(), store.ErrDiscountUsageExceeded)
}

func TestUpdateProductKeepsStock(t *testing.T) {
	s := NewSeeded(nil)
	ctx := context.Background()
	p, err := s.GetProduct(ctx, "prod-water")
	require.NoError(t, err)

	changed := *p
	changed.Name = "Still Water"
	changed.StockQuantity = 9999
	require.NoError(t, s.UpdateProduct(ctx, changed))

	got, err := s.GetProduct(ctx, "prod-water")
	require.NoError(t, err)
	assert.Equal(t, "Still Water", got.Name)
	assert.Equal(t, p.StockQuantity, got.StockQuantity)
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	s := NewSeeded(nil)
	err := s.CreateProduct(context.Background(), domain.Product{ID: "new", SKU: "sku-tea-01"})
	assert.ErrorIs(t, err, store.ErrConflict)
}
