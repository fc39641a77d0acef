// Package gateway is the boundary to an external card/UPI payment provider.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"possale/backend/internal/xid"
)

var (
	ErrUnknownOrder  = errors.New("unknown gateway order")
	ErrOrderMismatch = errors.New("gateway order belongs to another sale")
	ErrOrderCaptured = errors.New("gateway order already captured")
)

type OrderRef struct {
	OrderID   string          `json:"orderId"`
	SaleID    string          `json:"saleId"`
	PaymentID string          `json:"paymentId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
	Captured  bool            `json:"captured"`
}

type Gateway interface {
	KeyID() string
	// CreateOrder opens an order for amount and binds it to saleID.
	CreateOrder(ctx context.Context, saleID string, amount decimal.Decimal, currency string) (OrderRef, error)
	// VerifyPayment checks the provider's signature over ref.OrderID and ref.PaymentID.
	// It fails with ErrOrderMismatch when ref.SaleID is not the order's sale and with
	// ErrOrderCaptured once the order has been captured.
	VerifyPayment(ctx context.Context, ref OrderRef, signature string) (bool, error)
	// Capture marks an order as paid. A second capture fails with ErrOrderCaptured.
	Capture(ctx context.Context, orderID string, paymentID string) error
}

// HMACGateway is a local stand-in for the provider. Orders live in memory and
// signatures are hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
type HMACGateway struct {
	keyID  string
	secret []byte

	mu     sync.Mutex
	orders map[string]OrderRef
}

func NewHMACGateway(keyID string, secret string) *HMACGateway {
	return &HMACGateway{
		keyID:  keyID,
		secret: []byte(secret),
		orders: make(map[string]OrderRef),
	}
}

func (g *HMACGateway) KeyID() string {
	return g.keyID
}

func (g *HMACGateway) CreateOrder(_ context.Context, saleID string, amount decimal.Decimal, currency string) (OrderRef, error) {
	if !amount.IsPositive() {
		return OrderRef{}, errors.New("gateway order amount must be positive")
	}
	if strings.TrimSpace(saleID) == "" {
		return OrderRef{}, errors.New("gateway order needs a sale")
	}
	ref := OrderRef{
		OrderID:   "order_" + strings.ReplaceAll(xid.New(), "-", ""),
		SaleID:    strings.TrimSpace(saleID),
		Amount:    amount.Round(2),
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		CreatedAt: time.Now().UTC(),
	}
	g.mu.Lock()
	g.orders[ref.OrderID] = ref
	g.mu.Unlock()
	return ref, nil
}

func (g *HMACGateway) VerifyPayment(_ context.Context, ref OrderRef, signature string) (bool, error) {
	g.mu.Lock()
	order, ok := g.orders[ref.OrderID]
	g.mu.Unlock()
	if !ok {
		return false, ErrUnknownOrder
	}
	if ref.SaleID != order.SaleID {
		return false, ErrOrderMismatch
	}
	if order.Captured {
		return false, ErrOrderCaptured
	}
	if ref.Amount.IsPositive() && !ref.Amount.Equal(order.Amount) {
		return false, nil
	}
	expected := g.Sign(ref.OrderID, ref.PaymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))), nil
}

func (g *HMACGateway) Capture(_ context.Context, orderID string, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Captured {
		return ErrOrderCaptured
	}
	order.Captured = true
	order.PaymentID = paymentID
	g.orders[orderID] = order
	return nil
}

// Sign produces the signature the provider would send back for a captured payment.
func (g *HMACGateway) Sign(orderID string, paymentID string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
