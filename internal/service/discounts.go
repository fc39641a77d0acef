package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"possale/backend/internal/discount"
	"possale/backend/internal/domain"
	"possale/backend/internal/money"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

// PreviewDiscount evaluates a discount against a purchase amount. It reads the
// discount but never consumes usage. A failing rule is reported in the response
// rather than as an error.
func (s *Service) PreviewDiscount(ctx context.Context, req domain.DiscountApplyRequest) (domain.DiscountApplyResponse, error) {
	if req.PurchaseAmount.IsNegative() {
		return domain.DiscountApplyResponse{}, domain.Invalid("purchaseAmount", money.ErrInvalidAmount, "purchaseAmount must not be negative")
	}
	purchase := money.Round(req.PurchaseAmount)

	d, field, err := s.builder.LookupDiscount(ctx, req.DiscountID, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DiscountApplyResponse{}, domain.Invalid(field, domain.ErrDiscountNotFound, "discount not found")
		}
		return domain.DiscountApplyResponse{}, err
	}

	resp := domain.DiscountApplyResponse{DiscountID: d.ID, FinalAmount: purchase}
	res, err := discount.Evaluate(*d, purchase, s.now())
	if err != nil {
		reason, ok := discount.RejectionReason(err)
		if !ok {
			return domain.DiscountApplyResponse{}, err
		}
		resp.Reason = string(reason)
		return resp, nil
	}
	resp.Applicable = true
	resp.DiscountAmount = res.DiscountAmount
	resp.FinalAmount = money.ClampZero(purchase.Sub(res.DiscountAmount))
	return resp, nil
}

func (s *Service) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	return s.repo.ListDiscounts(ctx)
}

func (s *Service) CreateDiscount(ctx context.Context, req domain.DiscountCreateRequest) (domain.Discount, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}

	d := domain.Discount{
		ID:                xid.New(),
		Code:              normalizeCode(req.Code),
		Name:              strings.TrimSpace(req.Name),
		Type:              domain.DiscountType(strings.ToLower(strings.TrimSpace(string(req.Type)))),
		Value:             money.Round(req.Value),
		MinPurchaseAmount: money.Round(req.MinPurchaseAmount),
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
		IsActive:          true,
		CreatedAt:         s.now(),
	}
	if d.MaxDiscountAmount.Valid {
		d.MaxDiscountAmount.Decimal = money.Round(d.MaxDiscountAmount.Decimal)
	}
	if err := discount.Validate(d); err != nil {
		return domain.Discount{}, err
	}
	if err := s.repo.CreateDiscount(ctx, d); err != nil {
		return domain.Discount{}, err
	}

	s.logAudit(ctx, "discount_create", "discount", d.ID, fmt.Sprintf("name=%s,type=%s,value=%s", d.Name, d.Type, d.Value.String()))
	return d, nil
}

// UpdateDiscount applies a patch. Code, type and usedCount are not patchable.
func (s *Service) UpdateDiscount(ctx context.Context, id string, patch domain.DiscountPatch) (domain.Discount, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}

	current, err := s.repo.GetDiscount(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Discount{}, domain.ErrDiscountNotFound
		}
		return domain.Discount{}, err
	}

	updated := *current
	if v, ok := patch.Name.Get(); ok {
		updated.Name = strings.TrimSpace(v)
	}
	if v, ok := patch.Value.Get(); ok {
		updated.Value = money.Round(v)
	}
	if v, ok := patch.MinPurchaseAmount.Get(); ok {
		updated.MinPurchaseAmount = money.Round(v)
	}
	if patch.MaxDiscountAmount.Set {
		updated.MaxDiscountAmount.Valid = patch.MaxDiscountAmount.Valid
		updated.MaxDiscountAmount.Decimal = money.Round(patch.MaxDiscountAmount.Value)
	}
	if patch.StartDate.Set {
		updated.StartDate = patch.StartDate.Ptr()
	}
	if patch.EndDate.Set {
		updated.EndDate = patch.EndDate.Ptr()
	}
	if patch.UsageLimit.Set {
		updated.UsageLimit = patch.UsageLimit.Ptr()
	}
	if v, ok := patch.IsActive.Get(); ok {
		updated.IsActive = v
	}

	if err := discount.Validate(updated); err != nil {
		return domain.Discount{}, err
	}
	if err := s.repo.UpdateDiscount(ctx, updated); err != nil {
		return domain.Discount{}, err
	}

	s.logAudit(ctx, "discount_update", "discount", updated.ID, fmt.Sprintf("active=%t", updated.IsActive))
	return updated, nil
}

func normalizeCode(code *string) *string {
	v := trimmed(code)
	if v == nil {
		return nil
	}
	upper := strings.ToUpper(*v)
	return &upper
}
