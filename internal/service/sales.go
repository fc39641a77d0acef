package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"possale/backend/internal/domain"
	"possale/backend/internal/money"
	"possale/backend/internal/sale"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

// CreateSale prices the request and commits it. The caller may be anonymous in staff
// mode, in which case createdBy stays null.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	draft, err := s.builder.Build(ctx, req)
	if err != nil {
		s.metrics.SaleFailed(failureReason(err))
		return domain.SaleCreateResponse{}, err
	}
	return s.Commit(ctx, draft)
}

// Commit writes a draft as one unit of work: discount usage, stock reservations,
// invoice number, sale and items, ledger rows and the optional first payment.
// Nothing is visible if any step fails.
func (s *Service) Commit(ctx context.Context, draft sale.Draft) (domain.SaleCreateResponse, error) {
	createdBy := actorRef(ctx)
	now := s.now()

	var (
		committed domain.Sale
		changeDue decimal.Decimal
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if draft.Discount != nil {
			if err := tx.IncrementDiscountUsage(ctx, draft.Discount.ID); err != nil {
				err = fmt.Errorf("discount %s: %w", draft.Discount.ID, err)
				if errors.Is(err, store.ErrDiscountUsageExceeded) {
					return domain.Conflict("discountId", err)
				}
				return err
			}
		}

		lines := make([]stockLine, 0, len(draft.Items))
		for i, item := range draft.Items {
			lines = append(lines, stockLine{productID: item.ProductID, quantity: item.Quantity, index: i})
		}
		for _, line := range mergeStockLines(lines) {
			if err := tx.ReserveStock(ctx, line.productID, line.quantity); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.ErrProductNotFound
				}
				err = fmt.Errorf("reserve %s: %w", line.productID, err)
				if errors.Is(err, store.ErrInsufficientStock) {
					return domain.Conflict(fmt.Sprintf("items[%d].productId", line.index), err)
				}
				return err
			}
		}

		invoice, err := tx.NextInvoiceNumber(ctx, now)
		if err != nil {
			return err
		}

		record := domain.Sale{
			ID:                  xid.New(),
			InvoiceNumber:       invoice,
			CustomerID:          draft.CustomerID,
			SaleDate:            now,
			Subtotal:            draft.Subtotal,
			TaxAmount:           draft.TaxAmount,
			ItemDiscountAmount:  draft.ItemDiscountAmount,
			OrderDiscountAmount: draft.OrderDiscountAmount,
			DiscountAmount:      draft.DiscountAmount,
			TotalAmount:         draft.TotalAmount,
			PaidAmount:          decimal.Zero,
			PaymentStatus:       domain.PaymentPending,
			PaymentMethod:       draft.PaymentMethod,
			Notes:               draft.Notes,
			CreatedBy:           createdBy,
			Items:               make([]domain.SaleItem, 0, len(draft.Items)),
		}
		if draft.Discount != nil {
			id := draft.Discount.ID
			record.DiscountID = &id
		}
		for _, item := range draft.Items {
			item.ID = xid.New()
			item.SaleID = record.ID
			record.Items = append(record.Items, item)
		}
		if err := tx.InsertSale(ctx, record); err != nil {
			return err
		}

		for _, item := range record.Items {
			if err := tx.AppendInventory(ctx, domain.InventoryTransaction{
				ID:              xid.New(),
				ProductID:       item.ProductID,
				TransactionType: domain.InventorySale,
				Quantity:        -item.Quantity,
				ReferenceType:   domain.ReferenceSale,
				ReferenceID:     &record.ID,
				SaleItemID:      &item.ID,
				CreatedBy:       createdBy,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}

		if draft.PaidAmount.IsPositive() {
			amount := money.Min(draft.PaidAmount, record.TotalAmount)
			changeDue = draft.PaidAmount.Sub(amount)
			if amount.IsPositive() {
				payment := domain.Payment{
					ID:            xid.New(),
					SaleID:        record.ID,
					Kind:          domain.PaymentKindPayment,
					PaymentMethod: record.PaymentMethod,
					Amount:        amount,
					TransactionID: draft.TransactionID,
					PaymentDate:   now,
					CreatedBy:     createdBy,
				}
				if err := tx.InsertPayment(ctx, payment); err != nil {
					return err
				}
				record.Payments = []domain.Payment{payment}
				record.PaidAmount = amount
			}
		}

		record.PaymentStatus = statusFor(record.TotalAmount, record.PaidAmount)
		if record.PaymentStatus != domain.PaymentPending {
			if err := tx.UpdateSale(ctx, record); err != nil {
				return err
			}
		}

		committed = record
		return nil
	})
	if err != nil {
		s.metrics.SaleFailed(failureReason(err))
		return domain.SaleCreateResponse{}, err
	}

	s.metrics.SaleCommitted(committed)
	s.logger.Info("sale committed",
		zap.String("sale_id", committed.ID),
		zap.String("invoice", committed.InvoiceNumber),
		zap.String("total", committed.TotalAmount.StringFixed(money.Scale)),
		zap.String("status", string(committed.PaymentStatus)),
	)
	s.logAudit(ctx, "sale_create", "sale", committed.ID, fmt.Sprintf("invoice=%s,total=%s,items=%d",
		committed.InvoiceNumber, committed.TotalAmount.StringFixed(money.Scale), len(committed.Items)))

	return domain.SaleCreateResponse{Sale: committed, ChangeDue: changeDue}, nil
}

// statusFor derives the payment status from the net amount paid against what is
// billable. A zero total needs no payment.
func statusFor(total decimal.Decimal, paid decimal.Decimal) domain.PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return domain.PaymentPaid
	case paid.IsPositive():
		return domain.PaymentPartial
	default:
		return domain.PaymentPending
	}
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, domain.Invalid("id", domain.ErrInvalidInput, "sale id is required")
	}

	cached, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("sale cache read failed", zap.String("sale_id", id), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	version, verErr := s.cache.Version(ctx, id)
	if verErr != nil {
		s.logger.Warn("sale cache version read failed", zap.String("sale_id", id), zap.Error(verErr))
	}
	found, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, saleNotFound(err)
	}
	if verErr == nil {
		if _, err := s.cache.SetIfVersion(ctx, found, version, s.cacheTTL); err != nil {
			s.logger.Warn("sale cache write failed", zap.String("sale_id", id), zap.Error(err))
		}
	}
	return *found, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	switch filter.PaymentStatus {
	case "", domain.PaymentPending, domain.PaymentPaid, domain.PaymentPartial, domain.PaymentCancelled:
	default:
		return nil, domain.Invalid("paymentStatus", domain.ErrInvalidInput, "unknown payment status "+string(filter.PaymentStatus))
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, domain.Invalid("to", domain.ErrInvalidInput, "to must not be before from")
	}
	return s.repo.ListSales(ctx, filter)
}

// UpdateSale amends the header of a sale. The same customer and payment method checks
// as creation apply. Customer and payment method are frozen once money has been taken.
func (s *Service) UpdateSale(ctx context.Context, id string, patch domain.SaleUpdateRequest) (domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Sale{}, err
	}

	verr := &domain.ValidationError{}
	var customerID *string
	if v, ok := patch.CustomerID.Get(); ok {
		resolved, err := s.builder.ValidateCustomer(ctx, &v, verr)
		if err != nil {
			return domain.Sale{}, err
		}
		customerID = resolved
	}
	var method string
	if v, ok := patch.PaymentMethod.Get(); ok {
		method = sale.ValidatePaymentMethod(v, verr)
	} else if patch.PaymentMethod.Set {
		verr.Add("paymentMethod", domain.ErrInvalidInput, "paymentMethod cannot be null")
	}
	if err := verr.Err(); err != nil {
		return domain.Sale{}, err
	}

	var updated domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return saleNotFound(err)
		}
		if current.PaymentStatus == domain.PaymentCancelled {
			return domain.Conflict("id", domain.ErrSaleNotAmendable)
		}
		hasPayments := len(current.Payments) > 0
		if patch.CustomerID.Set {
			if hasPayments {
				return domain.Conflict("customerId", fmt.Errorf("%w: customer is fixed once paid", domain.ErrSaleNotAmendable))
			}
			current.CustomerID = customerID
		}
		if patch.PaymentMethod.Set {
			if hasPayments {
				return domain.Conflict("paymentMethod", fmt.Errorf("%w: payment method is fixed once paid", domain.ErrSaleNotAmendable))
			}
			current.PaymentMethod = method
		}
		if patch.Notes.Set {
			current.Notes = nil
			if v, ok := patch.Notes.Get(); ok && strings.TrimSpace(v) != "" {
				notes := strings.TrimSpace(v)
				current.Notes = &notes
			}
		}
		if err := tx.UpdateSale(ctx, *current); err != nil {
			return err
		}
		updated = *current
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateSale(ctx, id)
	s.logAudit(ctx, "sale_update", "sale", id, "header amended")
	return updated, nil
}

// stockLine is the quantity of one product touched by a sale. index is the first
// request line that named the product.
type stockLine struct {
	productID string
	quantity  int
	index     int
}

// mergeStockLines sums quantities per product and orders the result by product id, so
// every transaction locks product rows in the same order.
func mergeStockLines(lines []stockLine) []stockLine {
	byProduct := make(map[string]int, len(lines))
	merged := make([]stockLine, 0, len(lines))
	for _, line := range lines {
		if at, ok := byProduct[line.productID]; ok {
			merged[at].quantity += line.quantity
			continue
		}
		byProduct[line.productID] = len(merged)
		merged = append(merged, line)
	}
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].productID < merged[b].productID
	})
	return merged
}
