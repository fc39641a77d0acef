// Package discount decides whether a discount applies to a purchase amount and how much
// it is worth. It never changes usage counters.
package discount

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"possale/backend/internal/domain"
	"possale/backend/internal/money"
)

type Reason string

const (
	ReasonInactive     Reason = "Inactive"
	ReasonNotStarted   Reason = "NotStarted"
	ReasonExpired      Reason = "Expired"
	ReasonBelowMinimum Reason = "BelowMinimum"
	ReasonLimitReached Reason = "LimitReached"
)

// RejectionError is returned when a rule fails. It unwraps to domain.ErrDiscountRejected.
type RejectionError struct {
	DiscountID string
	Reason     Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("discount %s rejected: %s", e.DiscountID, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return domain.ErrDiscountRejected
}

// RejectionReason extracts the reason from an Evaluate error.
func RejectionReason(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

type Result struct {
	DiscountID     string
	DiscountAmount decimal.Decimal
}

// Evaluate applies the rules in order; the first failing rule wins.
func Evaluate(d domain.Discount, purchaseAmount decimal.Decimal, now time.Time) (Result, error) {
	if err := money.NonNegative(purchaseAmount); err != nil {
		return Result{}, err
	}
	reject := func(reason Reason) (Result, error) {
		return Result{}, &RejectionError{DiscountID: d.ID, Reason: reason}
	}

	if !d.IsActive {
		return reject(ReasonInactive)
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return reject(ReasonNotStarted)
	}
	if d.EndDate != nil && now.After(*d.EndDate) {
		return reject(ReasonExpired)
	}
	if purchaseAmount.LessThan(d.MinPurchaseAmount) {
		return reject(ReasonBelowMinimum)
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return reject(ReasonLimitReached)
	}

	var raw decimal.Decimal
	switch d.Type {
	case domain.DiscountPercentage:
		raw = money.Percent(purchaseAmount, d.Value)
		if d.MaxDiscountAmount.Valid {
			raw = money.Min(raw, d.MaxDiscountAmount.Decimal)
		}
	case domain.DiscountFixed:
		raw = d.Value
	default:
		return Result{}, fmt.Errorf("%w: unknown discount type %q", domain.ErrInvalidInput, d.Type)
	}

	amount := money.Round(money.Min(money.ClampZero(raw), purchaseAmount))
	return Result{DiscountID: d.ID, DiscountAmount: amount}, nil
}

// Validate checks a discount definition before it is stored.
func Validate(d domain.Discount) error {
	verr := &domain.ValidationError{}
	if d.Name == "" {
		verr.Add("name", domain.ErrInvalidInput, "name is required")
	}
	switch d.Type {
	case domain.DiscountPercentage:
		if d.Value.GreaterThan(decimal.NewFromInt(100)) {
			verr.Add("value", domain.ErrInvalidInput, "percentage must not exceed 100")
		}
	case domain.DiscountFixed:
	default:
		verr.Add("type", domain.ErrInvalidInput, "type must be percentage or fixed")
	}
	if !d.Value.IsPositive() {
		verr.Add("value", domain.ErrInvalidInput, "value must be greater than zero")
	}
	if d.MinPurchaseAmount.IsNegative() {
		verr.Add("minPurchaseAmount", domain.ErrInvalidInput, "must not be negative")
	}
	if d.MaxDiscountAmount.Valid && !d.MaxDiscountAmount.Decimal.IsPositive() {
		verr.Add("maxDiscountAmount", domain.ErrInvalidInput, "must be greater than zero")
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		verr.Add("endDate", domain.ErrInvalidInput, "must not be before startDate")
	}
	if d.UsageLimit != nil && *d.UsageLimit < 0 {
		verr.Add("usageLimit", domain.ErrInvalidInput, "must not be negative")
	}
	if d.UsageLimit != nil && d.UsedCount > *d.UsageLimit {
		verr.Add("usageLimit", domain.ErrInvalidInput, "must not be below usedCount")
	}
	return verr.Err()
}
