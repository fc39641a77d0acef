package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"possale/backend/internal/domain"
	"possale/backend/internal/gateway"
	"possale/backend/internal/money"
	"possale/backend/internal/sale"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

var ErrGatewayDisabled = errors.New("payment gateway not configured")

// RecordPayment adds a payment to a sale. The net amount paid may never exceed what
// is billable: the sale total less the value of returned goods.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	return s.recordPayment(ctx, req, nil)
}

// recordPayment runs capture, when given, as the last step of the payment transaction
// so a failed capture leaves no payment behind.
func (s *Service) recordPayment(ctx context.Context, req domain.PaymentRequest, capture func(ctx context.Context) error) (domain.PaymentResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.PaymentResponse{}, err
	}

	verr := &domain.ValidationError{}
	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		verr.Add("saleId", domain.ErrInvalidInput, "saleId is required")
	}
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		verr.Add("amount", money.ErrInvalidAmount, "amount must be greater than zero")
	}
	method := sale.ValidatePaymentMethod(req.PaymentMethod, verr)
	if err := verr.Err(); err != nil {
		return domain.PaymentResponse{}, err
	}

	actorID := actorRef(ctx)
	now := s.now()
	transactionID := trimmed(req.TransactionID)
	var resp domain.PaymentResponse

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return saleNotFound(err)
		}
		if current.PaymentStatus == domain.PaymentCancelled {
			return domain.Conflict("saleId", domain.ErrAlreadyCancelled)
		}
		if transactionID != nil && hasTransaction(current.Payments, *transactionID) {
			return domain.Conflict("transactionId",
				fmt.Errorf("%w: transaction %s already recorded", store.ErrConflict, *transactionID))
		}

		returned, err := tx.ReturnedQuantities(ctx, current.ID)
		if err != nil {
			return err
		}
		due := billable(current, returned)
		outstanding := due.Sub(current.PaidAmount)
		if amount.GreaterThan(outstanding) {
			return domain.Conflict("amount", fmt.Errorf("%w: outstanding %s, offered %s", domain.ErrOverpayment,
				money.ClampZero(outstanding).StringFixed(money.Scale), amount.StringFixed(money.Scale)))
		}

		payment := domain.Payment{
			ID:            xid.New(),
			SaleID:        current.ID,
			Kind:          domain.PaymentKindPayment,
			PaymentMethod: method,
			Amount:        amount,
			TransactionID: transactionID,
			PaymentDate:   now,
			CreatedBy:     actorID,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		current.PaidAmount = current.PaidAmount.Add(amount)
		current.PaymentStatus = statusFor(due, current.PaidAmount)
		if err := tx.UpdateSale(ctx, *current); err != nil {
			return err
		}
		current.Payments = append(current.Payments, payment)

		if capture != nil {
			if err := capture(ctx); err != nil {
				return err
			}
		}
		resp = domain.PaymentResponse{Payment: payment, Sale: *current}
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.invalidateSale(ctx, saleID)
	s.logAudit(ctx, "payment_record", "sale", saleID, fmt.Sprintf("amount=%s,method=%s,status=%s",
		amount.StringFixed(money.Scale), method, resp.Sale.PaymentStatus))
	return resp, nil
}

// CreateGatewayOrder opens a provider order for the outstanding balance of a sale.
func (s *Service) CreateGatewayOrder(ctx context.Context, req domain.GatewayOrderRequest) (domain.GatewayOrderResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.GatewayOrderResponse{}, err
	}
	if s.gateway == nil {
		return domain.GatewayOrderResponse{}, ErrGatewayDisabled
	}

	saleID := strings.TrimSpace(req.SaleID)
	var outstanding decimal.Decimal
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return saleNotFound(err)
		}
		if current.PaymentStatus == domain.PaymentCancelled {
			return domain.Conflict("saleId", domain.ErrAlreadyCancelled)
		}
		returned, err := tx.ReturnedQuantities(ctx, current.ID)
		if err != nil {
			return err
		}
		outstanding = billable(current, returned).Sub(current.PaidAmount)
		if !outstanding.IsPositive() {
			return domain.Conflict("saleId", fmt.Errorf("%w: sale %s has nothing outstanding", domain.ErrOverpayment, current.ID))
		}
		return nil
	})
	if err != nil {
		return domain.GatewayOrderResponse{}, err
	}

	ref, err := s.gateway.CreateOrder(ctx, saleID, outstanding, s.currency)
	if err != nil {
		return domain.GatewayOrderResponse{}, fmt.Errorf("create gateway order: %w", err)
	}
	s.logger.Info("gateway order created", zap.String("sale_id", saleID), zap.String("order_id", ref.OrderID))

	return domain.GatewayOrderResponse{
		OrderID:  ref.OrderID,
		KeyID:    s.gateway.KeyID(),
		Amount:   ref.Amount,
		Currency: ref.Currency,
	}, nil
}

// VerifyGatewayPayment checks the provider signature and records the captured amount
// as a gateway payment. An order only pays for the sale it was opened for, and only once.
func (s *Service) VerifyGatewayPayment(ctx context.Context, req domain.GatewayVerifyRequest) (domain.PaymentResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.PaymentResponse{}, err
	}
	if s.gateway == nil {
		return domain.PaymentResponse{}, ErrGatewayDisabled
	}

	verr := &domain.ValidationError{}
	for _, f := range []struct{ field, value string }{
		{"saleId", req.SaleID},
		{"orderId", req.OrderID},
		{"paymentId", req.PaymentID},
		{"signature", req.Signature},
	} {
		if strings.TrimSpace(f.value) == "" {
			verr.Add(f.field, domain.ErrInvalidInput, f.field+" is required")
		}
	}
	if !req.Amount.IsPositive() {
		verr.Add("amount", money.ErrInvalidAmount, "amount must be greater than zero")
	}
	if err := verr.Err(); err != nil {
		return domain.PaymentResponse{}, err
	}

	saleID := strings.TrimSpace(req.SaleID)
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	ok, err := s.gateway.VerifyPayment(ctx, gateway.OrderRef{
		OrderID:   orderID,
		SaleID:    saleID,
		PaymentID: paymentID,
		Amount:    money.Round(req.Amount),
	}, req.Signature)
	if err != nil {
		return domain.PaymentResponse{}, gatewayError(err)
	}
	if !ok {
		s.logger.Warn("gateway signature rejected", zap.String("sale_id", saleID), zap.String("order_id", orderID))
		return domain.PaymentResponse{}, domain.Invalid("signature", domain.ErrInvalidInput, "signature verification failed")
	}

	resp, err := s.recordPayment(ctx, domain.PaymentRequest{
		SaleID:        saleID,
		PaymentMethod: "gateway",
		Amount:        req.Amount,
		TransactionID: &paymentID,
	}, func(ctx context.Context) error {
		if err := s.gateway.Capture(ctx, orderID, paymentID); err != nil {
			return gatewayError(err)
		}
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	s.logger.Info("gateway order captured", zap.String("sale_id", saleID), zap.String("order_id", orderID))
	return resp, nil
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrUnknownOrder):
		return domain.Invalid("orderId", domain.ErrInvalidInput, "unknown gateway order")
	case errors.Is(err, gateway.ErrOrderMismatch):
		return domain.Invalid("saleId", domain.ErrInvalidInput, "gateway order belongs to another sale")
	case errors.Is(err, gateway.ErrOrderCaptured):
		return domain.Conflict("orderId", fmt.Errorf("%w: %w", store.ErrConflict, err))
	default:
		return fmt.Errorf("gateway: %w", err)
	}
}

// billable is the sale total less the refund value of every returned unit. It is zero
// once every unit has come back.
func billable(current *domain.Sale, returned map[string]int) decimal.Decimal {
	linesTotal := decimal.Zero
	allReturned := len(current.Items) > 0
	for _, item := range current.Items {
		linesTotal = linesTotal.Add(item.LineTotal)
		if returned[item.ID] < item.Quantity {
			allReturned = false
		}
	}
	if allReturned {
		return decimal.Zero
	}
	due := current.TotalAmount
	for _, item := range current.Items {
		if qty := returned[item.ID]; qty > 0 {
			due = due.Sub(lineRefund(item, qty, current.TotalAmount, linesTotal))
		}
	}
	return money.ClampZero(due)
}

func hasTransaction(payments []domain.Payment, transactionID string) bool {
	for _, p := range payments {
		if p.Kind == domain.PaymentKindPayment && p.TransactionID != nil && *p.TransactionID == transactionID {
			return true
		}
	}
	return false
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}
