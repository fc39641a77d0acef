package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ActorID returns nil for the anonymous staff-mode caller.
func (a *Actor) ActorID() *string {
	if a == nil || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

type Product struct {
	ID            string              `json:"id" db:"id"`
	SKU           string              `json:"sku" db:"sku"`
	Name          string              `json:"name" db:"name"`
	CategoryID    *string             `json:"categoryId,omitempty" db:"category_id"`
	UnitPrice     decimal.Decimal     `json:"unitPrice" db:"unit_price"`
	CostPrice     decimal.NullDecimal `json:"costPrice" db:"cost_price"`
	StockQuantity int                 `json:"stockQuantity" db:"stock_quantity"`
	InitialStock  int                 `json:"initialStock" db:"initial_stock"`
	MinStockLevel int                 `json:"minStockLevel" db:"min_stock_level"`
	TaxRate       decimal.Decimal     `json:"taxRate" db:"tax_rate"`
	IsActive      bool                `json:"isActive" db:"is_active"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
}

// PriceSnapshot is the catalog view the sale builder prices a line with.
type PriceSnapshot struct {
	ProductID string          `db:"id"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	TaxRate   decimal.Decimal `db:"tax_rate"`
	IsActive  bool            `db:"is_active"`
}

type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ParentID  *string   `json:"parentId,omitempty" db:"parent_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Email     *string   `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Discount struct {
	ID                string              `json:"id" db:"id"`
	Code              *string             `json:"code,omitempty" db:"code"`
	Name              string              `json:"name" db:"name"`
	Type              DiscountType        `json:"type" db:"type"`
	Value             decimal.Decimal     `json:"value" db:"value"`
	MinPurchaseAmount decimal.Decimal     `json:"minPurchaseAmount" db:"min_purchase_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"maxDiscountAmount" db:"max_discount_amount"`
	StartDate         *time.Time          `json:"startDate,omitempty" db:"start_date"`
	EndDate           *time.Time          `json:"endDate,omitempty" db:"end_date"`
	UsageLimit        *int                `json:"usageLimit,omitempty" db:"usage_limit"`
	UsedCount         int                 `json:"usedCount" db:"used_count"`
	IsActive          bool                `json:"isActive" db:"is_active"`
	CreatedAt         time.Time           `json:"createdAt" db:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCancelled PaymentStatus = "cancelled"
)

type Sale struct {
	ID                  string          `json:"id" db:"id"`
	InvoiceNumber       string          `json:"invoiceNumber" db:"invoice_number"`
	CustomerID          *string         `json:"customerId" db:"customer_id"`
	DiscountID          *string         `json:"discountId,omitempty" db:"discount_id"`
	SaleDate            time.Time       `json:"saleDate" db:"sale_date"`
	Subtotal            decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount           decimal.Decimal `json:"taxAmount" db:"tax_amount"`
	ItemDiscountAmount  decimal.Decimal `json:"itemDiscountAmount" db:"item_discount_amount"`
	OrderDiscountAmount decimal.Decimal `json:"orderDiscountAmount" db:"order_discount_amount"`
	DiscountAmount      decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	TotalAmount         decimal.Decimal `json:"totalAmount" db:"total_amount"`
	PaidAmount          decimal.Decimal `json:"paidAmount" db:"-"`
	PaymentStatus       PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	PaymentMethod       string          `json:"paymentMethod" db:"payment_method"`
	Notes               *string         `json:"notes" db:"notes"`
	CreatedBy           *string         `json:"createdBy" db:"created_by"`
	CancelledAt         *time.Time      `json:"cancelledAt,omitempty" db:"cancelled_at"`
	Items               []SaleItem      `json:"items" db:"-"`
	Payments            []Payment       `json:"payments,omitempty" db:"-"`
}

type SaleItem struct {
	ID             string          `json:"id" db:"id"`
	SaleID         string          `json:"saleId" db:"sale_id"`
	ProductID      string          `json:"productId" db:"product_id"`
	Quantity       int             `json:"quantity" db:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice" db:"unit_price"`
	TaxRate        decimal.Decimal `json:"taxRate" db:"tax_rate"`
	DiscountAmount decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"taxAmount" db:"tax_amount"`
	LineTotal      decimal.Decimal `json:"lineTotal" db:"line_total"`
}

type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "payment"
	PaymentKindRefund  PaymentKind = "refund"
)

// Payment amounts are positive for payments and negative for refunds.
type Payment struct {
	ID            string          `json:"id" db:"id"`
	SaleID        string          `json:"saleId" db:"sale_id"`
	Kind          PaymentKind     `json:"kind" db:"kind"`
	PaymentMethod string          `json:"paymentMethod" db:"payment_method"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TransactionID *string         `json:"transactionId,omitempty" db:"transaction_id"`
	PaymentDate   time.Time       `json:"paymentDate" db:"payment_date"`
	CreatedBy     *string         `json:"createdBy,omitempty" db:"created_by"`
}

type InventoryTxType string

const (
	InventorySale       InventoryTxType = "sale"
	InventoryReturn     InventoryTxType = "return"
	InventoryAdjustment InventoryTxType = "adjustment"
)

const (
	ReferenceSale       = "sale"
	ReferenceAdjustment = "adjustment"
)

// InventoryTransaction is an append-only ledger row. Quantity is signed.
type InventoryTransaction struct {
	ID              string          `json:"id" db:"id"`
	ProductID       string          `json:"productId" db:"product_id"`
	TransactionType InventoryTxType `json:"transactionType" db:"transaction_type"`
	Quantity        int             `json:"quantity" db:"quantity"`
	ReferenceType   string          `json:"referenceType" db:"reference_type"`
	ReferenceID     *string         `json:"referenceId,omitempty" db:"reference_id"`
	SaleItemID      *string         `json:"saleItemId,omitempty" db:"sale_item_id"`
	Notes           *string         `json:"notes,omitempty" db:"notes"`
	CreatedBy       *string         `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}

type SaleReturn struct {
	ID           string           `json:"id"`
	SaleID       string           `json:"saleId"`
	RefundMethod string           `json:"refundMethod"`
	RefundAmount decimal.Decimal  `json:"refundAmount"`
	Items        []SaleReturnLine `json:"items"`
	Refund       *Payment         `json:"refund,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type SaleReturnLine struct {
	SaleItemID   string          `json:"saleItemId"`
	ProductID    string          `json:"productId"`
	Quantity     int             `json:"quantity"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
}

type UserAccount struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password_hash"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type SaleFilter struct {
	CustomerID    string
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

type LedgerReport struct {
	ProductID     string                 `json:"productId"`
	InitialStock  int                    `json:"initialStock"`
	LedgerSum     int                    `json:"ledgerSum"`
	StockQuantity int                    `json:"stockQuantity"`
	Reconciled    bool                   `json:"reconciled"`
	Entries       []InventoryTransaction `json:"entries"`
}

type AuditLog struct {
	ID         string    `json:"id" db:"id"`
	ActorID    *string   `json:"actorId,omitempty" db:"actor_id"`
	ActorRole  string    `json:"actorRole" db:"actor_role"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entityType" db:"entity_type"`
	EntityID   string    `json:"entityId" db:"entity_id"`
	Detail     string    `json:"detail" db:"detail"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
