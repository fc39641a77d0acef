package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possale/backend/internal/domain"
	"possale/backend/internal/gateway"
	"possale/backend/internal/metrics"
	"possale/backend/internal/store"
	"possale/backend/internal/store/memory"
)

var testNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, Options{
		Gateway: gateway.NewHMACGateway("key_test", "gateway-secret"),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Clock:   func() time.Time { return testNow },
	})

	require.NoError(t, repo.CreateProduct(context.Background(), domain.Product{
		ID:            "prod-p",
		SKU:           "SKU-P",
		Name:          "Product P",
		UnitPrice:     dec("100"),
		TaxRate:       dec("10"),
		StockQuantity: 10,
		InitialStock:  10,
		IsActive:      true,
	}))
	require.NoError(t, repo.CreateProduct(context.Background(), domain.Product{
		ID:            "prod-q",
		SKU:           "SKU-Q",
		Name:          "Product Q",
		UnitPrice:     dec("5"),
		TaxRate:       dec("0"),
		StockQuantity: 100,
		InitialStock:  100,
		IsActive:      true,
	}))
	require.NoError(t, repo.CreateDiscount(context.Background(), domain.Discount{
		ID:                "disc-10",
		Code:              strPtr("TENOFF"),
		Name:              "Ten percent",
		Type:              domain.DiscountPercentage,
		Value:             dec("10"),
		MaxDiscountAmount: decimal.NewNullDecimal(dec("20")),
		IsActive:          true,
	}))
	return svc, repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "user-cashier", Username: "cashier", Role: domain.RoleCashier})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "user-admin", Username: "admin", Role: domain.RoleAdmin})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func strPtr(v string) *string {
	return &v
}

func scenarioRequest() domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		Items:      []domain.SaleItemRequest{{ProductID: "prod-p", Quantity: 3}},
		DiscountID: strPtr("disc-10"),
	}
}

func assertTotals(t *testing.T, sale domain.Sale) {
	t.Helper()
	expected := sale.Subtotal.Add(sale.TaxAmount).Sub(sale.DiscountAmount)
	assert.True(t, sale.TotalAmount.Equal(expected), "total %s != %s", sale.TotalAmount, expected)
	assert.False(t, sale.TotalAmount.IsNegative())
}

func stockOf(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestCreateSaleScenario(t *testing.T) {
	svc, repo := newTestService(t)

	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)

	sale := resp.Sale
	assert.Equal(t, "300", sale.Subtotal.String())
	assert.Equal(t, "30", sale.TaxAmount.String())
	assert.Equal(t, "20", sale.DiscountAmount.String())
	assert.Equal(t, "310", sale.TotalAmount.String())
	assert.Equal(t, domain.PaymentPending, sale.PaymentStatus)
	assert.True(t, strings.HasPrefix(sale.InvoiceNumber, "INV-20260314-"), sale.InvoiceNumber)
	require.NotNil(t, sale.CreatedBy)
	assert.Equal(t, "user-cashier", *sale.CreatedBy)
	assertTotals(t, sale)

	assert.Equal(t, 7, stockOf(t, repo, "prod-p"))

	ledger, err := repo.ListInventory(context.Background(), "prod-p")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, -3, ledger[0].Quantity)
	assert.Equal(t, domain.InventorySale, ledger[0].TransactionType)
	require.NotNil(t, ledger[0].ReferenceID)
	assert.Equal(t, sale.ID, *ledger[0].ReferenceID)

	d, err := repo.GetDiscount(context.Background(), "disc-10")
	require.NoError(t, err)
	assert.Equal(t, 1, d.UsedCount)
}

func TestCreateSaleStaffModeLeavesCreatorEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "prod-q", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Sale.CreatedBy)
}

func TestCreateSaleInitialPaymentSetsStatus(t *testing.T) {
	tests := []struct {
		name       string
		paid       string
		wantStatus domain.PaymentStatus
		wantPaid   string
		wantChange string
	}{
		{name: "exact", paid: "310", wantStatus: domain.PaymentPaid, wantPaid: "310", wantChange: "0"},
		{name: "change due", paid: "400", wantStatus: domain.PaymentPaid, wantPaid: "310", wantChange: "90"},
		{name: "partial", paid: "100", wantStatus: domain.PaymentPartial, wantPaid: "100", wantChange: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			req := scenarioRequest()
			req.PaidAmount = decimal.NewNullDecimal(dec(tt.paid))

			resp, err := svc.CreateSale(cashierCtx(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Sale.PaymentStatus)
			assert.True(t, resp.Sale.PaidAmount.Equal(dec(tt.wantPaid)))
			assert.True(t, resp.ChangeDue.Equal(dec(tt.wantChange)))

			stored, err := svc.GetSale(cashierCtx(), resp.Sale.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.PaymentStatus)
			require.Len(t, stored.Payments, 1)
			assert.True(t, stored.Payments[0].Amount.Equal(dec(tt.wantPaid)))
		})
	}
}

func TestCommitRollsBackOnInsufficientStock(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-q", Quantity: 4},
			{ProductID: "prod-p", Quantity: 11},
		},
		DiscountID: strPtr("disc-10"),
		PaidAmount: decimal.NewNullDecimal(dec("5000")),
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	assert.Equal(t, 100, stockOf(t, repo, "prod-q"))
	assert.Equal(t, 10, stockOf(t, repo, "prod-p"))

	sales, err := repo.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)

	ledger, err := repo.ListInventory(context.Background(), "prod-q")
	require.NoError(t, err)
	assert.Empty(t, ledger)

	d, err := repo.GetDiscount(context.Background(), "disc-10")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsedCount)
}

func TestCreateSaleCollectsValidationErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-p", Quantity: 0},
			{ProductID: "missing", Quantity: 1},
		},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestDiscountUsageLimitHoldsUnderConcurrentCommits(t *testing.T) {
	svc, repo := newTestService(t)
	limit := 1
	require.NoError(t, repo.CreateDiscount(context.Background(), domain.Discount{
		ID:         "disc-once",
		Name:       "Once",
		Type:       domain.DiscountFixed,
		Value:      dec("2"),
		UsageLimit: &limit,
		IsActive:   true,
	}))

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
				Items:      []domain.SaleItemRequest{{ProductID: "prod-q", Quantity: 1}},
				DiscountID: strPtr("disc-once"),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	for _, err := range failures {
		assert.True(t, errors.Is(err, store.ErrDiscountUsageExceeded) || errors.Is(err, domain.ErrDiscountRejected), err.Error())
	}

	d, err := repo.GetDiscount(context.Background(), "disc-once")
	require.NoError(t, err)
	assert.Equal(t, 1, d.UsedCount)
	assert.Equal(t, 99, stockOf(t, repo, "prod-q"))
}

func TestCancelSaleTwiceRestoresStockOnce(t *testing.T) {
	svc, repo := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)

	cancelled, err := svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCancelled, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 10, stockOf(t, repo, "prod-p"))

	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Equal(t, 10, stockOf(t, repo, "prod-p"))

	ledger, err := repo.ListInventory(context.Background(), "prod-p")
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, domain.InventoryReturn, ledger[1].TransactionType)
	assert.Equal(t, 3, ledger[1].Quantity)
}

func TestCancelSaleRequiresAuthenticatedUser(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(context.Background(), scenarioRequest())
	require.NoError(t, err)

	_, err = svc.CancelSale(context.Background(), resp.Sale.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCancelUnknownSale(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CancelSale(cashierCtx(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessReturnRejectsOverReturn(t *testing.T) {
	svc, repo := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)
	itemID := resp.Sale.Items[0].ID

	_, err = svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: itemID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, stockOf(t, repo, "prod-p"))

	_, err = svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: itemID, Quantity: 2}},
	})
	require.ErrorIs(t, err, domain.ErrOverReturn)
	assert.Equal(t, 9, stockOf(t, repo, "prod-p"))

	ledger, err := repo.ListInventory(context.Background(), "prod-p")
	require.NoError(t, err)
	assert.Len(t, ledger, 2)

	// cancelling afterwards only puts back the unit still out
	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, repo, "prod-p"))
}

func TestProcessReturnRejectsForeignItem(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)

	_, err = svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: "other-item", Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidItem)
}

func TestProcessReturnRefundsShareOfTotal(t *testing.T) {
	svc, _ := newTestService(t)
	req := scenarioRequest()
	req.PaidAmount = decimal.NewNullDecimal(dec("310"))
	resp, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)

	ret, err := svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items:  []domain.ReturnItemRequest{{SaleItemID: resp.Sale.Items[0].ID, Quantity: 1}},
		Reason: "damaged",
	})
	require.NoError(t, err)
	// 330 line total over 3 units, scaled by 310/330 for the order discount
	assert.Equal(t, "103.33", ret.RefundAmount.StringFixed(2))
	require.NotNil(t, ret.Refund)
	assert.Equal(t, domain.PaymentKindRefund, ret.Refund.Kind)
	assert.Equal(t, "-103.33", ret.Refund.Amount.StringFixed(2))
	assert.Equal(t, "cash", ret.RefundMethod)

	stored, err := svc.GetSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "206.67", stored.PaidAmount.StringFixed(2))
}

func TestProcessReturnRefundCappedAtNetPaid(t *testing.T) {
	svc, _ := newTestService(t)
	req := scenarioRequest()
	req.PaidAmount = decimal.NewNullDecimal(dec("50"))
	resp, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)

	ret, err := svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: resp.Sale.Items[0].ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00", ret.RefundAmount.StringFixed(2))
	require.Len(t, ret.Items, 1)
	assert.Equal(t, "50.00", ret.Items[0].RefundAmount.StringFixed(2))
}

func TestProcessReturnOnCancelledSale(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)
	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)

	_, err = svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: resp.Sale.Items[0].ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)

	first, err := svc.RecordPayment(cashierCtx(), domain.PaymentRequest{SaleID: resp.Sale.ID, PaymentMethod: "card", Amount: dec("300")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartial, first.Sale.PaymentStatus)

	_, err = svc.RecordPayment(cashierCtx(), domain.PaymentRequest{SaleID: resp.Sale.ID, Amount: dec("20")})
	require.ErrorIs(t, err, domain.ErrOverpayment)

	last, err := svc.RecordPayment(cashierCtx(), domain.PaymentRequest{SaleID: resp.Sale.ID, Amount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, last.Sale.PaymentStatus)
	assert.Equal(t, "310", last.Sale.PaidAmount.String())
}

func TestRecordPaymentValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordPayment(cashierCtx(), domain.PaymentRequest{PaymentMethod: "barter", Amount: dec("-1")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestRecordPaymentOnCancelledSale(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)
	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)

	_, err = svc.RecordPayment(cashierCtx(), domain.PaymentRequest{SaleID: resp.Sale.ID, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestPreviewDiscountNeverConsumesUsage(t *testing.T) {
	svc, repo := newTestService(t)
	req := domain.DiscountApplyRequest{Code: strPtr("tenoff"), PurchaseAmount: dec("300")}

	first, err := svc.PreviewDiscount(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := svc.PreviewDiscount(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.True(t, first.Applicable)
	assert.Equal(t, "20", first.DiscountAmount.String())
	assert.Equal(t, "280", first.FinalAmount.String())

	d, err := repo.GetDiscount(context.Background(), "disc-10")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsedCount)
}

func TestPreviewDiscountReportsRejection(t *testing.T) {
	svc, repo := newTestService(t)
	require.NoError(t, repo.CreateDiscount(context.Background(), domain.Discount{
		ID:                "disc-min",
		Name:              "Big basket",
		Type:              domain.DiscountFixed,
		Value:             dec("5"),
		MinPurchaseAmount: dec("50"),
		IsActive:          true,
	}))

	resp, err := svc.PreviewDiscount(context.Background(), domain.DiscountApplyRequest{DiscountID: strPtr("disc-min"), PurchaseAmount: dec("20")})
	require.NoError(t, err)
	assert.False(t, resp.Applicable)
	assert.Equal(t, "BelowMinimum", resp.Reason)
	assert.Equal(t, "20", resp.FinalAmount.String())

	_, err = svc.PreviewDiscount(context.Background(), domain.DiscountApplyRequest{DiscountID: strPtr("missing"), PurchaseAmount: dec("20")})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerReconcilesAcrossMovements(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)
	_, err = svc.ProcessReturn(cashierCtx(), resp.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnItemRequest{{SaleItemID: resp.Sale.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{ProductID: "prod-p", Quantity: -2, Notes: "count"})
	require.NoError(t, err)

	report, err := svc.ProductLedger(cashierCtx(), "prod-p")
	require.NoError(t, err)
	assert.Equal(t, -4, report.LedgerSum)
	assert.Equal(t, 6, report.StockQuantity)
	assert.True(t, report.Reconciled)
	assert.Len(t, report.Entries, 3)
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{ProductID: "prod-p", Quantity: -11})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 10, stockOf(t, repo, "prod-p"))

	_, err = svc.AdjustStock(cashierCtx(), domain.StockAdjustmentRequest{ProductID: "prod-p", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateSaleAmendsHeader(t *testing.T) {
	svc, repo := newTestService(t)
	require.NoError(t, repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Rina"}))
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateSale(cashierCtx(), resp.Sale.ID, domain.SaleUpdateRequest{
		CustomerID:    domain.Some("cust-1"),
		PaymentMethod: domain.Some("CARD"),
		Notes:         domain.Some("  deliver tomorrow "),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CustomerID)
	assert.Equal(t, "cust-1", *updated.CustomerID)
	assert.Equal(t, "card", updated.PaymentMethod)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "deliver tomorrow", *updated.Notes)

	_, err = svc.UpdateSale(cashierCtx(), resp.Sale.ID, domain.SaleUpdateRequest{CustomerID: domain.Some("ghost")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.OnlyNotFound())

	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)
	_, err = svc.UpdateSale(cashierCtx(), resp.Sale.ID, domain.SaleUpdateRequest{Notes: domain.Some("late")})
	require.ErrorIs(t, err, domain.ErrSaleNotAmendable)
}

func TestUpdateSaleFreezesPaymentMethodOncePaid(t *testing.T) {
	svc, _ := newTestService(t)
	req := scenarioRequest()
	req.PaidAmount = decimal.NewNullDecimal(dec("10"))
	resp, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)

	_, err = svc.UpdateSale(cashierCtx(), resp.Sale.ID, domain.SaleUpdateRequest{PaymentMethod: domain.Some("card")})
	require.ErrorIs(t, err, domain.ErrSaleNotAmendable)

	_, err = svc.UpdateSale(cashierCtx(), resp.Sale.ID, domain.SaleUpdateRequest{Notes: domain.Some("ok")})
	require.NoError(t, err)
}

func TestUpdateCategoryRejectsCycle(t *testing.T) {
	svc, _ := newTestService(t)
	root, err := svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Drinks"})
	require.NoError(t, err)
	child, err := svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Coffee", ParentID: &root.ID})
	require.NoError(t, err)

	_, err = svc.UpdateCategory(adminCtx(), root.ID, domain.CategoryPatch{ParentID: domain.Some(child.ID)})
	require.ErrorIs(t, err, domain.ErrCategoryCycle)

	moved, err := svc.UpdateCategory(adminCtx(), child.ID, domain.CategoryPatch{ParentID: domain.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)

	nodes, err := svc.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestCreateProductAndPatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{SKU: "x", Name: "x", UnitPrice: dec("1")})
	require.ErrorIs(t, err, domain.ErrForbidden)

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU:           " sku-new ",
		Name:          "New thing",
		UnitPrice:     dec("2.499"),
		TaxRate:       dec("5"),
		StockQuantity: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "SKU-NEW", created.SKU)
	assert.Equal(t, "2.50", created.UnitPrice.StringFixed(2))
	assert.Equal(t, 4, created.InitialStock)

	_, err = svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: "bad", UnitPrice: dec("0"), TaxRate: dec("120")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)

	patched, err := svc.UpdateProduct(adminCtx(), created.ID, domain.ProductPatch{
		UnitPrice: domain.Some(dec("3")),
		IsActive:  domain.Some(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "3", patched.UnitPrice.String())
	assert.False(t, patched.IsActive)
	assert.Equal(t, 4, patched.StockQuantity)

	_, err = svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: created.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestDiscountCreateAndPatch(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateDiscount(adminCtx(), domain.DiscountCreateRequest{
		Code:  strPtr(" spring "),
		Name:  "Spring",
		Type:  "Fixed",
		Value: dec("3"),
	})
	require.NoError(t, err)
	require.NotNil(t, created.Code)
	assert.Equal(t, "SPRING", *created.Code)
	assert.Equal(t, domain.DiscountFixed, created.Type)

	_, err = svc.CreateDiscount(adminCtx(), domain.DiscountCreateRequest{Code: strPtr("SPRING"), Name: "dup", Type: "fixed", Value: dec("1")})
	require.ErrorIs(t, err, store.ErrConflict)

	patched, err := svc.UpdateDiscount(adminCtx(), created.ID, domain.DiscountPatch{IsActive: domain.Some(false)})
	require.NoError(t, err)
	assert.False(t, patched.IsActive)

	preview, err := svc.PreviewDiscount(context.Background(), domain.DiscountApplyRequest{Code: strPtr("spring"), PurchaseAmount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "Inactive", preview.Reason)
}

func TestGatewayPaymentFlow(t *testing.T) {
	gw := gateway.NewHMACGateway("key_test", "gateway-secret")
	repo := memory.New()
	svc := New(repo, Options{Gateway: gw, Currency: "idr", Clock: func() time.Time { return testNow }})
	require.NoError(t, repo.CreateProduct(context.Background(), domain.Product{
		ID: "prod-p", SKU: "SKU-P", Name: "P", UnitPrice: dec("100"), TaxRate: dec("10"), StockQuantity: 5, InitialStock: 5, IsActive: true,
	}))

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items:         []domain.SaleItemRequest{{ProductID: "prod-p", Quantity: 1}},
		PaymentMethod: "gateway",
	})
	require.NoError(t, err)

	order, err := svc.CreateGatewayOrder(cashierCtx(), domain.GatewayOrderRequest{SaleID: resp.Sale.ID})
	require.NoError(t, err)
	assert.Equal(t, "110", order.Amount.String())
	assert.Equal(t, "IDR", order.Currency)
	assert.Equal(t, "key_test", order.KeyID)

	_, err = svc.VerifyGatewayPayment(cashierCtx(), domain.GatewayVerifyRequest{
		SaleID: resp.Sale.ID, OrderID: order.OrderID, PaymentID: "pay_1", Signature: "deadbeef", Amount: order.Amount,
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	paid, err := svc.VerifyGatewayPayment(cashierCtx(), domain.GatewayVerifyRequest{
		SaleID:    resp.Sale.ID,
		OrderID:   order.OrderID,
		PaymentID: "pay_1",
		Signature: gw.Sign(order.OrderID, "pay_1"),
		Amount:    order.Amount,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Sale.PaymentStatus)
	assert.Equal(t, "gateway", paid.Payment.PaymentMethod)
	require.NotNil(t, paid.Payment.TransactionID)
	assert.Equal(t, "pay_1", *paid.Payment.TransactionID)

	_, err = svc.CreateGatewayOrder(cashierCtx(), domain.GatewayOrderRequest{SaleID: resp.Sale.ID})
	require.ErrorIs(t, err, domain.ErrOverpayment)
}

func TestGatewayDisabled(t *testing.T) {
	svc := New(memory.New(), Options{})
	_, err := svc.CreateGatewayOrder(cashierCtx(), domain.GatewayOrderRequest{SaleID: "x"})
	require.ErrorIs(t, err, ErrGatewayDisabled)
}

func TestAuditTrailRecordsActor(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.CreateSale(cashierCtx(), scenarioRequest())
	require.NoError(t, err)
	_, err = svc.CancelSale(cashierCtx(), resp.Sale.ID)
	require.NoError(t, err)

	logs, err := svc.ListAuditLogs(adminCtx(), "sale", resp.Sale.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	actions := []string{logs[0].Action, logs[1].Action}
	assert.ElementsMatch(t, []string{"sale_create", "sale_cancel"}, actions)
	for _, entry := range logs {
		require.NotNil(t, entry.ActorID)
		assert.Equal(t, "user-cashier", *entry.ActorID)
	}

	_, err = svc.ListAuditLogs(cashierCtx(), "sale", resp.Sale.ID, 10)
	require.ErrorIs(t, err, domain.ErrForbidden)
}
