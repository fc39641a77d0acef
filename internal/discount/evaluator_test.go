package discount

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possale/backend/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(v int) *int { return &v }

func baseDiscount() domain.Discount {
	return domain.Discount{
		ID:                "disc-1",
		Name:              "Ten off",
		Type:              domain.DiscountPercentage,
		Value:             dec("10"),
		MinPurchaseAmount: dec("50"),
		MaxDiscountAmount: decimal.NewNullDecimal(dec("20")),
		IsActive:          true,
	}
}

func TestEvaluatePercentageCappedAtMax(t *testing.T) {
	res, err := Evaluate(baseDiscount(), dec("300"), time.Now())
	require.NoError(t, err)
	assert.True(t, res.DiscountAmount.Equal(dec("20")), "got %s", res.DiscountAmount)
}

func TestEvaluatePercentageUnderCap(t *testing.T) {
	res, err := Evaluate(baseDiscount(), dec("123.45"), time.Now())
	require.NoError(t, err)
	assert.True(t, res.DiscountAmount.Equal(dec("12.35")), "got %s", res.DiscountAmount)
}

func TestEvaluateFixedNeverExceedsPurchase(t *testing.T) {
	d := baseDiscount()
	d.Type = domain.DiscountFixed
	d.Value = dec("80")
	d.MinPurchaseAmount = decimal.Zero

	res, err := Evaluate(d, dec("60"), time.Now())
	require.NoError(t, err)
	assert.True(t, res.DiscountAmount.Equal(dec("60")))
}

func TestEvaluateRuleOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	cases := []struct {
		name   string
		mutate func(*domain.Discount)
		amount string
		want   Reason
	}{
		{"inactive wins over everything", func(d *domain.Discount) {
			d.IsActive = false
			d.StartDate = &future
			d.UsageLimit = intPtr(0)
		}, "10", ReasonInactive},
		{"not started", func(d *domain.Discount) { d.StartDate = &future }, "100", ReasonNotStarted},
		{"expired", func(d *domain.Discount) { d.EndDate = &past }, "100", ReasonExpired},
		{"below minimum before limit", func(d *domain.Discount) { d.UsageLimit = intPtr(1); d.UsedCount = 1 }, "10", ReasonBelowMinimum},
		{"limit reached", func(d *domain.Discount) { d.UsageLimit = intPtr(1); d.UsedCount = 1 }, "100", ReasonLimitReached},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := baseDiscount()
			tc.mutate(&d)
			_, err := Evaluate(d, dec(tc.amount), now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrDiscountRejected))
			reason, ok := RejectionReason(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestEvaluateWindowBoundariesAreInclusive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := baseDiscount()
	d.StartDate = &now
	d.EndDate = &now

	_, err := Evaluate(d, dec("100"), now)
	require.NoError(t, err)
}

func TestEvaluateIsPure(t *testing.T) {
	d := baseDiscount()
	d.UsageLimit = intPtr(3)

	first, err := Evaluate(d, dec("150"), time.Now())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Evaluate(d, dec("150"), time.Now())
		require.NoError(t, err)
		assert.True(t, first.DiscountAmount.Equal(again.DiscountAmount))
	}
	assert.Equal(t, 0, d.UsedCount)
}

func TestValidateDiscount(t *testing.T) {
	require.NoError(t, Validate(baseDiscount()))

	bad := baseDiscount()
	bad.Value = dec("120")
	bad.Type = domain.DiscountPercentage
	err := Validate(bad)
	require.Error(t, err)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "value", verr.Fields[0].Field)
}
