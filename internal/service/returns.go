package service

import (
	"context"
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

// CancelSale voids a sale and puts back whatever has not already been returned.
// Recorded payments are left in place.
func (s *Service) CancelSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Sale{}, err
	}
	actorID := actorRef(ctx)
	now := s.now()

	var (
		cancelled domain.Sale
		restored  int
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return saleNotFound(err)
		}
		if current.PaymentStatus == domain.PaymentCancelled {
			return domain.Conflict("id", domain.ErrAlreadyCancelled)
		}

		returned, err := tx.ReturnedQuantities(ctx, current.ID)
		if err != nil {
			return err
		}
		releases := make([]stockLine, 0, len(current.Items))
		for i, item := range current.Items {
			if remaining := item.Quantity - returned[item.ID]; remaining > 0 {
				releases = append(releases, stockLine{productID: item.ProductID, quantity: remaining, index: i})
			}
		}
		if err := releaseStock(ctx, tx, releases); err != nil {
			return err
		}

		notes := "sale cancelled"
		for _, item := range current.Items {
			remaining := item.Quantity - returned[item.ID]
			if remaining <= 0 {
				continue
			}
			if err := tx.AppendInventory(ctx, domain.InventoryTransaction{
				ID:              xid.New(),
				ProductID:       item.ProductID,
				TransactionType: domain.InventoryReturn,
				Quantity:        remaining,
				ReferenceType:   domain.ReferenceSale,
				ReferenceID:     &current.ID,
				SaleItemID:      &item.ID,
				Notes:           &notes,
				CreatedBy:       actorID,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			restored += remaining
		}

		current.PaymentStatus = domain.PaymentCancelled
		current.CancelledAt = &now
		if err := tx.UpdateSale(ctx, *current); err != nil {
			return err
		}
		cancelled = *current
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateSale(ctx, id)
	s.metrics.StockReturned(restored)
	s.logger.Info("sale cancelled", zap.String("sale_id", id), zap.Int("units_restored", restored))
	s.logAudit(ctx, "sale_cancel", "sale", id, fmt.Sprintf("invoice=%s,units=%d", cancelled.InvoiceNumber, restored))
	return cancelled, nil
}

// ProcessReturn takes back part of a sale. Each line refunds its share of the sale
// total. The refund as a whole only gives back what was paid beyond the value of the
// goods the customer keeps.
func (s *Service) ProcessReturn(ctx context.Context, saleID string, req domain.ReturnRequest) (domain.SaleReturn, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SaleReturn{}, err
	}

	verr := &domain.ValidationError{}
	if len(req.Items) == 0 {
		verr.Add("items", domain.ErrInvalidInput, "at least one item is required")
	}
	requested := make(map[string]int, len(req.Items))
	firstIndex := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for i, item := range req.Items {
		itemID := strings.TrimSpace(item.SaleItemID)
		if itemID == "" {
			verr.Add(fmt.Sprintf("items[%d].saleItemId", i), domain.ErrInvalidInput, "saleItemId is required")
			continue
		}
		if item.Quantity <= 0 {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), domain.ErrInvalidQuantity, "")
			continue
		}
		if _, seen := requested[itemID]; !seen {
			order = append(order, itemID)
			firstIndex[itemID] = i
		}
		requested[itemID] += item.Quantity
	}
	refundMethod := strings.TrimSpace(req.RefundMethod)
	if refundMethod != "" {
		refundMethod = sale.ValidatePaymentMethod(refundMethod, verr)
	}
	if err := verr.Err(); err != nil {
		return domain.SaleReturn{}, err
	}

	actorID := actorRef(ctx)
	now := s.now()
	result := domain.SaleReturn{ID: xid.New(), SaleID: saleID, CreatedAt: now}
	var units int

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return saleNotFound(err)
		}
		if current.PaymentStatus == domain.PaymentCancelled {
			return domain.Conflict("saleId", domain.ErrAlreadyCancelled)
		}
		if refundMethod == "" {
			refundMethod = current.PaymentMethod
		}
		result.RefundMethod = refundMethod

		items := make(map[string]domain.SaleItem, len(current.Items))
		linesTotal := decimal.Zero
		for _, item := range current.Items {
			items[item.ID] = item
			linesTotal = linesTotal.Add(item.LineTotal)
		}
		returned, err := tx.ReturnedQuantities(ctx, current.ID)
		if err != nil {
			return err
		}

		for _, itemID := range order {
			item, ok := items[itemID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrInvalidItem, itemID)
			}
			remaining := item.Quantity - returned[itemID]
			if requested[itemID] > remaining {
				return domain.Conflict(fmt.Sprintf("items[%d].quantity", firstIndex[itemID]),
					fmt.Errorf("%w: item %s has %d remaining, requested %d", domain.ErrOverReturn, itemID, remaining, requested[itemID]))
			}
		}

		releases := make([]stockLine, 0, len(order))
		for _, itemID := range order {
			releases = append(releases, stockLine{productID: items[itemID].ProductID, quantity: requested[itemID], index: firstIndex[itemID]})
		}
		if err := releaseStock(ctx, tx, releases); err != nil {
			return err
		}

		reason := strings.TrimSpace(req.Reason)
		notes := "return"
		if reason != "" {
			notes = "return: " + reason
		}
		for _, itemID := range order {
			item := items[itemID]
			qty := requested[itemID]
			if err := tx.AppendInventory(ctx, domain.InventoryTransaction{
				ID:              xid.New(),
				ProductID:       item.ProductID,
				TransactionType: domain.InventoryReturn,
				Quantity:        qty,
				ReferenceType:   domain.ReferenceSale,
				ReferenceID:     &current.ID,
				SaleItemID:      &item.ID,
				Notes:           &notes,
				CreatedBy:       actorID,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			result.Items = append(result.Items, domain.SaleReturnLine{
				SaleItemID:   item.ID,
				ProductID:    item.ProductID,
				Quantity:     qty,
				RefundAmount: lineRefund(item, qty, current.TotalAmount, linesTotal),
			})
			returned[itemID] += qty
			units += qty
		}

		gross := decimal.Zero
		for _, line := range result.Items {
			gross = gross.Add(line.RefundAmount)
		}
		due := billable(current, returned)
		refund := money.Min(gross, money.ClampZero(current.PaidAmount.Sub(due)))
		result.RefundAmount = refund
		if refund.LessThan(gross) {
			scaleRefundLines(result.Items, refund)
		}
		if current.PaymentStatus == domain.PaymentPartial {
			if status := statusFor(due, current.PaidAmount.Sub(refund)); status != current.PaymentStatus {
				current.PaymentStatus = status
				if err := tx.UpdateSale(ctx, *current); err != nil {
					return err
				}
			}
		}
		if !refund.IsPositive() {
			return nil
		}

		payment := domain.Payment{
			ID:            xid.New(),
			SaleID:        current.ID,
			Kind:          domain.PaymentKindRefund,
			PaymentMethod: refundMethod,
			Amount:        refund.Neg(),
			PaymentDate:   now,
			CreatedBy:     actorID,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		result.Refund = &payment
		return nil
	})
	if err != nil {
		return domain.SaleReturn{}, err
	}

	s.invalidateSale(ctx, saleID)
	s.metrics.StockReturned(units)
	s.logger.Info("sale return processed",
		zap.String("sale_id", saleID),
		zap.Int("units", units),
		zap.String("refund", result.RefundAmount.StringFixed(money.Scale)),
	)
	s.logAudit(ctx, "sale_return", "sale", saleID, fmt.Sprintf("units=%d,refund=%s,method=%s",
		units, result.RefundAmount.StringFixed(money.Scale), result.RefundMethod))
	return result, nil
}

// lineRefund is the returned units' share of the line total, scaled by the order-level
// discount so a full return refunds the sale total.
func lineRefund(item domain.SaleItem, qty int, saleTotal decimal.Decimal, linesTotal decimal.Decimal) decimal.Decimal {
	if item.Quantity <= 0 || !linesTotal.IsPositive() {
		return decimal.Zero
	}
	share := item.LineTotal.Mul(decimal.NewFromInt(int64(qty))).Div(decimal.NewFromInt(int64(item.Quantity)))
	if saleTotal.LessThan(linesTotal) {
		share = share.Mul(saleTotal).Div(linesTotal)
	}
	return money.Round(share)
}

// scaleRefundLines caps per-line refunds so they add up to capped. Rounding residue
// goes to the largest line.
func scaleRefundLines(lines []domain.SaleReturnLine, capped decimal.Decimal) {
	if len(lines) == 0 {
		return
	}
	gross := decimal.Zero
	for _, line := range lines {
		gross = gross.Add(line.RefundAmount)
	}
	if !gross.IsPositive() {
		return
	}
	sum := decimal.Zero
	for i := range lines {
		lines[i].RefundAmount = money.Round(lines[i].RefundAmount.Mul(capped).Div(gross))
		sum = sum.Add(lines[i].RefundAmount)
	}
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return lines[idx[a]].RefundAmount.GreaterThan(lines[idx[b]].RefundAmount)
	})
	lines[idx[0]].RefundAmount = lines[idx[0]].RefundAmount.Add(capped.Sub(sum))
}

// releaseStock puts stock back one product at a time in product id order.
func releaseStock(ctx context.Context, tx store.Tx, lines []stockLine) error {
	for _, line := range mergeStockLines(lines) {
		if err := tx.ReleaseStock(ctx, line.productID, line.quantity); err != nil {
			return fmt.Errorf("release %s: %w", line.productID, err)
		}
	}
	return nil
}
