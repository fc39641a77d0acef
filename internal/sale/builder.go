// Package sale turns a sale request into a priced, unpersisted draft. Building a draft
// reads the catalog but never reserves stock or consumes discount usage.
package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"possale/backend/internal/discount"
	"possale/backend/internal/domain"
	"possale/backend/internal/money"
	"possale/backend/internal/store"
)

const DefaultPaymentMethod = "cash"

type DiscountReader interface {
	GetDiscount(ctx context.Context, id string) (*domain.Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
}

type CustomerReader interface {
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
}

type Builder struct {
	catalog   store.CatalogReader
	discounts DiscountReader
	customers CustomerReader
	now       func() time.Time
}

func NewBuilder(catalog store.CatalogReader, discounts DiscountReader, customers CustomerReader) *Builder {
	return &Builder{
		catalog:   catalog,
		discounts: discounts,
		customers: customers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for discount windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Draft is the computed sale before it is committed. Items carry no ids yet.
type Draft struct {
	CustomerID          *string
	Items               []domain.SaleItem
	Discount            *domain.Discount
	Subtotal            decimal.Decimal
	TaxAmount           decimal.Decimal
	ItemDiscountAmount  decimal.Decimal
	OrderDiscountAmount decimal.Decimal
	DiscountAmount      decimal.Decimal
	TotalAmount         decimal.Decimal
	PaymentMethod       string
	PaidAmount          decimal.Decimal
	TransactionID       *string
	Notes               *string
	BuiltAt             time.Time
}

func (b *Builder) Build(ctx context.Context, req domain.SaleCreateRequest) (Draft, error) {
	verr := &domain.ValidationError{}
	if len(req.Items) == 0 {
		verr.Add("items", domain.ErrEmptyCart, "")
		return Draft{}, verr
	}

	customerID, err := b.ValidateCustomer(ctx, req.CustomerID, verr)
	if err != nil {
		return Draft{}, err
	}
	method := ValidatePaymentMethod(req.PaymentMethod, verr)

	draft := Draft{
		CustomerID:    customerID,
		Items:         make([]domain.SaleItem, 0, len(req.Items)),
		PaymentMethod: method,
		TransactionID: trimmedOrNil(req.TransactionID),
		Notes:         trimmedOrNil(req.Notes),
		BuiltAt:       b.now(),
	}

	for i, item := range req.Items {
		line, err := b.priceLine(ctx, i, item, verr)
		if err != nil {
			return Draft{}, err
		}
		if line != nil {
			draft.Items = append(draft.Items, *line)
		}
	}

	if req.PaidAmount.Valid {
		if req.PaidAmount.Decimal.IsNegative() {
			verr.Add("paidAmount", money.ErrInvalidAmount, "paidAmount must not be negative")
		} else {
			draft.PaidAmount = money.Round(req.PaidAmount.Decimal)
		}
	}
	if err := verr.Err(); err != nil {
		return Draft{}, err
	}

	for _, line := range draft.Items {
		draft.Subtotal = draft.Subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		draft.TaxAmount = draft.TaxAmount.Add(line.TaxAmount)
		draft.ItemDiscountAmount = draft.ItemDiscountAmount.Add(line.DiscountAmount)
	}
	draft.Subtotal = money.Round(draft.Subtotal)

	orderDiscount, applied, err := b.orderDiscount(ctx, req, draft.Subtotal, draft.BuiltAt, verr)
	if err != nil {
		return Draft{}, err
	}
	if err := verr.Err(); err != nil {
		return Draft{}, err
	}

	// The order discount may not push the total below zero.
	ceiling := money.ClampZero(draft.Subtotal.Add(draft.TaxAmount).Sub(draft.ItemDiscountAmount))
	draft.OrderDiscountAmount = money.Min(orderDiscount, ceiling)
	draft.Discount = applied
	draft.DiscountAmount = draft.ItemDiscountAmount.Add(draft.OrderDiscountAmount)
	draft.TotalAmount = money.Round(money.ClampZero(draft.Subtotal.Add(draft.TaxAmount).Sub(draft.DiscountAmount)))
	return draft, nil
}

func (b *Builder) priceLine(ctx context.Context, i int, item domain.SaleItemRequest, verr *domain.ValidationError) (*domain.SaleItem, error) {
	field := fmt.Sprintf("items[%d]", i)
	valid := true

	productID := strings.TrimSpace(item.ProductID)
	if item.Quantity <= 0 {
		verr.Add(field+".quantity", domain.ErrInvalidQuantity, "")
		valid = false
	}
	if productID == "" {
		verr.Add(field+".productId", domain.ErrInvalidInput, "productId is required")
		return nil, nil
	}

	snapshot, err := b.catalog.GetPriceSnapshot(ctx, productID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("price snapshot %s: %w", productID, err)
		}
		verr.Add(field+".productId", domain.ErrProductNotFound, "product not found")
		return nil, nil
	}
	if !snapshot.IsActive {
		verr.Add(field+".productId", domain.ErrProductNotFound, "product is not available")
		return nil, nil
	}

	unitPrice := snapshot.UnitPrice
	if item.UnitPrice.Valid {
		if !item.UnitPrice.Decimal.IsPositive() {
			verr.Add(field+".unitPrice", domain.ErrInvalidUnitPrice, "")
			valid = false
		}
		unitPrice = money.Round(item.UnitPrice.Decimal)
	}
	if !valid {
		return nil, nil
	}

	lineSubtotal := money.Round(unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	itemDiscount := decimal.Zero
	if item.DiscountAmount.Valid {
		itemDiscount = money.Round(item.DiscountAmount.Decimal)
		if itemDiscount.IsNegative() || itemDiscount.GreaterThan(lineSubtotal) {
			verr.Add(field+".discountAmount", domain.ErrInvalidDiscount, "discountAmount must be between 0 and the line subtotal")
			return nil, nil
		}
	}
	lineTax := money.Round(money.Percent(lineSubtotal, snapshot.TaxRate))

	return &domain.SaleItem{
		ProductID:      productID,
		Quantity:       item.Quantity,
		UnitPrice:      unitPrice,
		TaxRate:        snapshot.TaxRate,
		DiscountAmount: itemDiscount,
		TaxAmount:      lineTax,
		LineTotal:      lineSubtotal.Sub(itemDiscount).Add(lineTax),
	}, nil
}

// orderDiscount resolves the order-level discount against the subtotal. A referenced
// discount goes through the evaluator; a bare amount is taken as a manual discount.
func (b *Builder) orderDiscount(ctx context.Context, req domain.SaleCreateRequest, subtotal decimal.Decimal, now time.Time, verr *domain.ValidationError) (decimal.Decimal, *domain.Discount, error) {
	d, field, err := b.lookupDiscount(ctx, req.DiscountID, req.DiscountCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			verr.Add(field, domain.ErrDiscountNotFound, "discount not found")
			return decimal.Zero, nil, nil
		}
		return decimal.Zero, nil, err
	}
	if d != nil {
		res, err := discount.Evaluate(*d, subtotal, now)
		if err != nil {
			if reason, ok := discount.RejectionReason(err); ok {
				verr.Add(field, err, "discount not applicable: "+string(reason))
				return decimal.Zero, nil, nil
			}
			return decimal.Zero, nil, err
		}
		return res.DiscountAmount, d, nil
	}

	if req.DiscountAmount.Valid {
		amount := money.Round(req.DiscountAmount.Decimal)
		if amount.IsNegative() || amount.GreaterThan(subtotal) {
			verr.Add("discountAmount", domain.ErrInvalidDiscount, "discountAmount must be between 0 and the subtotal")
			return decimal.Zero, nil, nil
		}
		return amount, nil, nil
	}
	return decimal.Zero, nil, nil
}

func (b *Builder) lookupDiscount(ctx context.Context, id *string, code *string) (*domain.Discount, string, error) {
	if v := trimmedOrNil(id); v != nil {
		d, err := b.discounts.GetDiscount(ctx, *v)
		return d, "discountId", err
	}
	if v := trimmedOrNil(code); v != nil {
		d, err := b.discounts.GetDiscountByCode(ctx, strings.ToUpper(*v))
		return d, "discountCode", err
	}
	return nil, "", nil
}

// LookupDiscount is the same resolution the builder uses, exposed for the preview endpoint.
func (b *Builder) LookupDiscount(ctx context.Context, id *string, code *string) (*domain.Discount, string, error) {
	if trimmedOrNil(id) == nil && trimmedOrNil(code) == nil {
		return nil, "discountId", domain.Invalid("discountId", domain.ErrInvalidInput, "discountId or code is required")
	}
	return b.lookupDiscount(ctx, id, code)
}

// ValidateCustomer checks an optional customer reference. Missing customers are
// recorded on verr; only storage failures are returned.
func (b *Builder) ValidateCustomer(ctx context.Context, customerID *string, verr *domain.ValidationError) (*string, error) {
	id := trimmedOrNil(customerID)
	if id == nil {
		return nil, nil
	}
	if _, err := b.customers.GetCustomer(ctx, *id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			verr.Add("customerId", domain.ErrCustomerNotFound, "customer not found")
			return nil, nil
		}
		return nil, fmt.Errorf("get customer %s: %w", *id, err)
	}
	return id, nil
}

func ValidatePaymentMethod(method string, verr *domain.ValidationError) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return DefaultPaymentMethod
	}
	if !IsSupportedPaymentMethod(method) {
		verr.Add("paymentMethod", domain.ErrInvalidInput, "unsupported payment method "+method)
	}
	return method
}

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "upi", "bank_transfer", "ewallet", "gateway":
		return true
	default:
		return false
	}
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
