package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderAndVerify(t *testing.T) {
	g := NewHMACGateway("key_test", "gateway-secret")
	ctx := context.Background()

	ref, err := g.CreateOrder(ctx, "sale-1", decimal.RequireFromString("310"), "inr")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.OrderID, "order_"))
	assert.Equal(t, "INR", ref.Currency)
	assert.Equal(t, "sale-1", ref.SaleID)

	ref.PaymentID = "pay_123"
	sig := g.Sign(ref.OrderID, ref.PaymentID)

	ok, err := g.VerifyPayment(ctx, ref, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.VerifyPayment(ctx, ref, strings.Repeat("0", len(sig)))
	require.NoError(t, err)
	assert.False(t, ok)

	ref.Amount = decimal.RequireFromString("1")
	ok, err = g.VerifyPayment(ctx, ref, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUnknownOrder(t *testing.T) {
	g := NewHMACGateway("key_test", "gateway-secret")
	_, err := g.VerifyPayment(context.Background(), OrderRef{OrderID: "order_missing", SaleID: "sale-1"}, "x")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestCreateOrderRejectsZero(t *testing.T) {
	g := NewHMACGateway("key_test", "gateway-secret")
	_, err := g.CreateOrder(context.Background(), "sale-1", decimal.Zero, "INR")
	assert.Error(t, err)

	_, err = g.CreateOrder(context.Background(), " ", decimal.NewFromInt(10), "INR")
	assert.Error(t, err)
}

func TestVerifyRejectsOrderOfAnotherSale(t *testing.T) {
	g := NewHMACGateway("key_test", "gateway-secret")
	ctx := context.Background()

	ref, err := g.CreateOrder(ctx, "sale-a", decimal.NewFromInt(50), "INR")
	require.NoError(t, err)
	ref.PaymentID = "pay_1"
	sig := g.Sign(ref.OrderID, ref.PaymentID)

	ref.SaleID = "sale-b"
	ok, err := g.VerifyPayment(ctx, ref, sig)
	assert.ErrorIs(t, err, ErrOrderMismatch)
	assert.False(t, ok)
}

func TestCapturedOrderCannotBeVerifiedAgain(t *testing.T) {
	g := NewHMACGateway("key_test", "gateway-secret")
	ctx := context.Background()

	ref, err := g.CreateOrder(ctx, "sale-a", decimal.NewFromInt(50), "INR")
	require.NoError(t, err)
	ref.PaymentID = "pay_1"
	sig := g.Sign(ref.OrderID, ref.PaymentID)

	ok, err := g.VerifyPayment(ctx, ref, sig)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Capture(ctx, ref.OrderID, ref.PaymentID))

	_, err = g.VerifyPayment(ctx, ref, sig)
	assert.ErrorIs(t, err, ErrOrderCaptured)
	assert.ErrorIs(t, g.Capture(ctx, ref.OrderID, ref.PaymentID), ErrOrderCaptured)
	assert.ErrorIs(t, g.Capture(ctx, "order_missing", "pay_1"), ErrUnknownOrder)
}
