package store

import (
	"context"
	"errors"
	"time"

	"possale/backend/internal/domain"
)

var (
	ErrNotFound              = domain.ErrNotFound
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrDiscountUsageExceeded = errors.New("discount usage limit exceeded")
	ErrConflict              = errors.New("conflict")
)

// CatalogReader is the read side of the catalog the sale builder prices lines with.
type CatalogReader interface {
	GetPriceSnapshot(ctx context.Context, productID string) (domain.PriceSnapshot, error)
}

// Tx is one atomic unit of work. Everything written through it is discarded when the
// function passed to WithinTx returns an error.
type Tx interface {
	// ReserveStock decrements stock only when the result stays >= 0.
	ReserveStock(ctx context.Context, productID string, qty int) error
	ReleaseStock(ctx context.Context, productID string, qty int) error
	AppendInventory(ctx context.Context, entry domain.InventoryTransaction) error

	// IncrementDiscountUsage fails with ErrDiscountUsageExceeded once usedCount reaches usageLimit.
	IncrementDiscountUsage(ctx context.Context, discountID string) error

	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)
	InsertSale(ctx context.Context, sale domain.Sale) error
	GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error
	InsertPayment(ctx context.Context, payment domain.Payment) error
	ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error)

	LockCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) error
}

type Repository interface {
	CatalogReader

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	ListInventory(ctx context.Context, productID string) ([]domain.InventoryTransaction, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) error

	ListDiscounts(ctx context.Context) ([]domain.Discount, error)
	GetDiscount(ctx context.Context, id string) (*domain.Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
	CreateDiscount(ctx context.Context, discount domain.Discount) error
	UpdateDiscount(ctx context.Context, discount domain.Discount) error

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
