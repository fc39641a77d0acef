package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleItemRequest struct {
	ProductID      string              `json:"productId"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      decimal.NullDecimal `json:"unitPrice"`
	DiscountAmount decimal.NullDecimal `json:"discountAmount"`
}

// SaleCreateRequest is the body of POST /sales. DiscountID or DiscountCode selects an
// order-level discount; DiscountAmount is a manual order-level amount used only when
// neither is set.
type SaleCreateRequest struct {
	CustomerID     *string             `json:"customerId"`
	Items          []SaleItemRequest   `json:"items"`
	DiscountID     *string             `json:"discountId"`
	DiscountCode   *string             `json:"discountCode"`
	DiscountAmount decimal.NullDecimal `json:"discountAmount"`
	PaymentMethod  string              `json:"paymentMethod"`
	PaidAmount     decimal.NullDecimal `json:"paidAmount"`
	TransactionID  *string             `json:"transactionId"`
	Notes          *string             `json:"notes"`
}

type SaleCreateResponse struct {
	Sale      Sale            `json:"sale"`
	ChangeDue decimal.Decimal `json:"changeDue"`
}

// SaleUpdateRequest is a patch over the amendable fields of a pending sale.
type SaleUpdateRequest struct {
	CustomerID    Optional[string] `json:"customerId"`
	PaymentMethod Optional[string] `json:"paymentMethod"`
	Notes         Optional[string] `json:"notes"`
}

type PaymentRequest struct {
	SaleID        string          `json:"saleId"`
	PaymentMethod string          `json:"paymentMethod"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID *string         `json:"transactionId"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
	Sale    Sale    `json:"sale"`
}

type DiscountApplyRequest struct {
	DiscountID     *string         `json:"discountId"`
	Code           *string         `json:"code"`
	PurchaseAmount decimal.Decimal `json:"purchaseAmount"`
}

type DiscountApplyResponse struct {
	DiscountID     string          `json:"discountId"`
	Applicable     bool            `json:"applicable"`
	Reason         string          `json:"reason,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

type ReturnItemRequest struct {
	SaleItemID string `json:"saleItemId"`
	Quantity   int    `json:"quantity"`
}

type ReturnRequest struct {
	Items        []ReturnItemRequest `json:"items"`
	RefundMethod string              `json:"refundMethod"`
	Reason       string              `json:"reason"`
}

type ProductCreateRequest struct {
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	CategoryID    *string             `json:"categoryId"`
	UnitPrice     decimal.Decimal     `json:"unitPrice"`
	CostPrice     decimal.NullDecimal `json:"costPrice"`
	StockQuantity int                 `json:"stockQuantity"`
	MinStockLevel int                 `json:"minStockLevel"`
	TaxRate       decimal.Decimal     `json:"taxRate"`
}

// ProductPatch never touches stock; stock only moves through the ledger.
type ProductPatch struct {
	Name          Optional[string]          `json:"name"`
	CategoryID    Optional[string]          `json:"categoryId"`
	UnitPrice     Optional[decimal.Decimal] `json:"unitPrice"`
	CostPrice     Optional[decimal.Decimal] `json:"costPrice"`
	MinStockLevel Optional[int]             `json:"minStockLevel"`
	TaxRate       Optional[decimal.Decimal] `json:"taxRate"`
	IsActive      Optional[bool]            `json:"isActive"`
}

type CategoryCreateRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

type CategoryPatch struct {
	Name     Optional[string] `json:"name"`
	ParentID Optional[string] `json:"parentId"`
}

type CustomerCreateRequest struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone"`
	Email *string `json:"email"`
}

type DiscountCreateRequest struct {
	Code              *string             `json:"code"`
	Name              string              `json:"name"`
	Type              DiscountType        `json:"type"`
	Value             decimal.Decimal     `json:"value"`
	MinPurchaseAmount decimal.Decimal     `json:"minPurchaseAmount"`
	MaxDiscountAmount decimal.NullDecimal `json:"maxDiscountAmount"`
	StartDate         *time.Time          `json:"startDate"`
	EndDate           *time.Time          `json:"endDate"`
	UsageLimit        *int                `json:"usageLimit"`
}

type DiscountPatch struct {
	Name              Optional[string]          `json:"name"`
	Value             Optional[decimal.Decimal] `json:"value"`
	MinPurchaseAmount Optional[decimal.Decimal] `json:"minPurchaseAmount"`
	MaxDiscountAmount Optional[decimal.Decimal] `json:"maxDiscountAmount"`
	StartDate         Optional[time.Time]       `json:"startDate"`
	EndDate           Optional[time.Time]       `json:"endDate"`
	UsageLimit        Optional[int]             `json:"usageLimit"`
	IsActive          Optional[bool]            `json:"isActive"`
}

type StockAdjustmentRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

type GatewayOrderRequest struct {
	SaleID string `json:"saleId"`
}

type GatewayOrderResponse struct {
	OrderID  string          `json:"orderId"`
	KeyID    string          `json:"keyId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type GatewayVerifyRequest struct {
	SaleID    string          `json:"saleId"`
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Signature string          `json:"signature"`
	Amount    decimal.Decimal `json:"amount"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
