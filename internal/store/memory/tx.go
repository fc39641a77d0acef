package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"possale/backend/internal/domain"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

// memTx runs with Store.mu held for writing. Every mutation pushes its inverse so a
// failed unit of work can be unwound in reverse order.
type memTx struct {
	s    *Store
	undo []func()
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) ReserveStock(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity %d", domain.ErrInvalidQuantity, qty)
	}
	p, ok := t.s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if p.StockQuantity < qty {
		return fmt.Errorf("%w: product %s has %d, need %d", store.ErrInsufficientStock, productID, p.StockQuantity, qty)
	}
	p.StockQuantity -= qty
	t.s.products[productID] = p
	t.undo = append(t.undo, func() {
		restored := t.s.products[productID]
		restored.StockQuantity += qty
		t.s.products[productID] = restored
	})
	return nil
}

func (t *memTx) ReleaseStock(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrInvalidQuantity, qty)
	}
	p, ok := t.s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.StockQuantity += qty
	t.s.products[productID] = p
	t.undo = append(t.undo, func() {
		restored := t.s.products[productID]
		restored.StockQuantity -= qty
		t.s.products[productID] = restored
	})
	return nil
}

func (t *memTx) AppendInventory(_ context.Context, entry domain.InventoryTransaction) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	n := len(t.s.inventory)
	t.s.inventory = append(t.s.inventory, entry)
	t.undo = append(t.undo, func() { t.s.inventory = t.s.inventory[:n] })
	return nil
}

func (t *memTx) IncrementDiscountUsage(_ context.Context, discountID string) error {
	d, ok := t.s.discounts[discountID]
	if !ok {
		return store.ErrNotFound
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return store.ErrDiscountUsageExceeded
	}
	prev := d
	d.UsedCount++
	t.s.discounts[discountID] = d
	t.undo = append(t.undo, func() { t.s.discounts[discountID] = prev })
	return nil
}

// NextInvoiceNumber is not rolled back, matching a database sequence.
func (t *memTx) NextInvoiceNumber(_ context.Context, at time.Time) (string, error) {
	t.s.invoiceSeq++
	return xid.InvoiceNumber(t.s.invoiceSeq, at), nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.s.sales[sale.ID]; exists {
		return store.ErrConflict
	}
	for _, existing := range t.s.sales {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return fmt.Errorf("%w: invoice %s", store.ErrConflict, sale.InvoiceNumber)
		}
	}
	stored := cloneSale(sale)
	t.s.sales[sale.ID] = &stored
	t.undo = append(t.undo, func() { delete(t.s.sales, sale.ID) })
	return nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id string) (*domain.Sale, error) {
	return t.s.saleView(id)
}

func (t *memTx) UpdateSale(_ context.Context, sale domain.Sale) error {
	current, ok := t.s.sales[sale.ID]
	if !ok {
		return store.ErrNotFound
	}
	prev := *current
	next := *current
	next.CustomerID = sale.CustomerID
	next.PaymentMethod = sale.PaymentMethod
	next.PaymentStatus = sale.PaymentStatus
	next.Notes = sale.Notes
	next.CancelledAt = sale.CancelledAt
	t.s.sales[sale.ID] = &next
	t.undo = append(t.undo, func() { t.s.sales[sale.ID] = &prev })
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, payment domain.Payment) error {
	if _, ok := t.s.sales[payment.SaleID]; !ok {
		return store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New()
	}
	saleID := payment.SaleID
	n := len(t.s.payments[saleID])
	t.s.payments[saleID] = append(t.s.payments[saleID], payment)
	t.undo = append(t.undo, func() { t.s.payments[saleID] = t.s.payments[saleID][:n] })
	return nil
}

func (t *memTx) ReturnedQuantities(_ context.Context, saleID string) (map[string]int, error) {
	out := make(map[string]int)
	for _, entry := range t.s.inventory {
		if entry.TransactionType != domain.InventoryReturn || entry.SaleItemID == nil {
			continue
		}
		if entry.ReferenceID == nil || *entry.ReferenceID != saleID {
			continue
		}
		out[*entry.SaleItemID] += entry.Quantity
	}
	return out, nil
}

func (t *memTx) LockCategories(_ context.Context) ([]domain.Category, error) {
	return t.s.categoryList(), nil
}

func (t *memTx) UpdateCategory(_ context.Context, category domain.Category) error {
	prev, ok := t.s.categories[category.ID]
	if !ok {
		return store.ErrNotFound
	}
	category.CreatedAt = prev.CreatedAt
	t.s.categories[category.ID] = category
	t.undo = append(t.undo, func() { t.s.categories[category.ID] = prev })
	return nil
}

// Payments are returned ordered by date so callers see them as recorded.
func sortPayments(payments []domain.Payment) {
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].PaymentDate.Before(payments[j].PaymentDate) })
}
