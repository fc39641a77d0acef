package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"possale/backend/internal/domain"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

// Store keeps everything in maps behind one RWMutex. WithinTx holds the write lock
// for the whole unit of work and replays an undo log when it fails.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	categories map[string]domain.Category
	customers  map[string]domain.Customer
	discounts  map[string]domain.Discount
	sales      map[string]*domain.Sale
	payments   map[string][]domain.Payment
	inventory  []domain.InventoryTransaction
	auditLogs  []domain.AuditLog
	users      map[string]domain.UserAccount
	invoiceSeq int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
		customers:  make(map[string]domain.Customer),
		discounts:  make(map[string]domain.Discount),
		sales:      make(map[string]*domain.Sale),
		payments:   make(map[string][]domain.Payment),
		users:      make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo catalog data and the admin/cashier accounts.
// Seed passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	s.users = seedUsers(logger, now)

	beverages := domain.Category{ID: "cat-beverage", Name: "Beverages", CreatedAt: now}
	coffee := domain.Category{ID: "cat-coffee", Name: "Coffee", ParentID: &beverages.ID, CreatedAt: now}
	grocery := domain.Category{ID: "cat-grocery", Name: "Grocery", CreatedAt: now}
	for _, c := range []domain.Category{beverages, coffee, grocery} {
		s.categories[c.ID] = c
	}

	seedProducts := []struct {
		id, sku, name, category, price, tax string
		stock                               int
	}{
		{"prod-coffee-beans", "SKU-COFFEE-01", "Coffee Beans 250g", coffee.ID, "12.50", "10", 40},
		{"prod-tea", "SKU-TEA-01", "Green Tea 20 bags", beverages.ID, "4.20", "10", 60},
		{"prod-water", "SKU-WATER-01", "Mineral Water 600ml", beverages.ID, "0.90", "0", 120},
		{"prod-rice", "SKU-RICE-05", "Rice 5kg", grocery.ID, "8.75", "5", 25},
		{"prod-sugar", "SKU-SUGAR-01", "Sugar 1kg", grocery.ID, "1.80", "5", 50},
	}
	for _, p := range seedProducts {
		categoryID := p.category
		s.products[p.id] = domain.Product{
			ID:            p.id,
			SKU:           p.sku,
			Name:          p.name,
			CategoryID:    &categoryID,
			UnitPrice:     decimal.RequireFromString(p.price),
			TaxRate:       decimal.RequireFromString(p.tax),
			StockQuantity: p.stock,
			InitialStock:  p.stock,
			MinStockLevel: 5,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	walkIn := domain.Customer{ID: "cust-walkin", Name: "Walk-in Regular", CreatedAt: now}
	s.customers[walkIn.ID] = walkIn

	welcome := "WELCOME10"
	s.discounts["disc-welcome"] = domain.Discount{
		ID:                "disc-welcome",
		Code:              &welcome,
		Name:              "Welcome 10%",
		Type:              domain.DiscountPercentage,
		Value:             decimal.NewFromInt(10),
		MinPurchaseAmount: decimal.NewFromInt(20),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(15)),
		IsActive:          true,
		CreatedAt:         now,
	}
	return s
}

func seedUsers(logger *zap.Logger, now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	users := make(map[string]domain.UserAccount, 2)
	for _, u := range []struct{ username, password, role string }{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			ID:        "user-" + u.username,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetPriceSnapshot(_ context.Context, productID string) (domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.PriceSnapshot{}, store.ErrNotFound
	}
	return domain.PriceSnapshot{ProductID: p.ID, UnitPrice: p.UnitPrice, TaxRate: p.TaxRate, IsActive: p.IsActive}, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ID]; exists {
		return store.ErrConflict
	}
	for _, p := range s.products {
		if strings.EqualFold(p.SKU, product.SKU) {
			return fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	// stock is owned by the ledger path
	product.StockQuantity = current.StockQuantity
	product.InitialStock = current.InitialStock
	product.SKU = current.SKU
	product.CreatedAt = current.CreatedAt
	s.products[product.ID] = product
	return nil
}

func (s *Store) ListInventory(_ context.Context, productID string) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InventoryTransaction, 0)
	for _, entry := range s.inventory {
		if entry.ProductID == productID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryList(), nil
}

func (s *Store) categoryList() []domain.Category {
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[category.ID]; exists {
		return store.ErrConflict
	}
	if category.ParentID != nil {
		if _, ok := s.categories[*category.ParentID]; !ok {
			return store.ErrNotFound
		}
	}
	s.categories[category.ID] = category
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[customer.ID]; exists {
		return store.ErrConflict
	}
	s.customers[customer.ID] = customer
	return nil
}

func (s *Store) ListDiscounts(_ context.Context) ([]domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Discount, 0, len(s.discounts))
	for _, d := range s.discounts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetDiscount(_ context.Context, id string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (s *Store) GetDiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.discounts {
		if d.Code != nil && strings.EqualFold(*d.Code, code) {
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateDiscount(_ context.Context, d domain.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.discounts[d.ID]; exists {
		return store.ErrConflict
	}
	if d.Code != nil {
		for _, existing := range s.discounts {
			if existing.Code != nil && strings.EqualFold(*existing.Code, *d.Code) {
				return fmt.Errorf("%w: code %s already exists", store.ErrConflict, *d.Code)
			}
		}
	}
	s.discounts[d.ID] = d
	return nil
}

func (s *Store) UpdateDiscount(_ context.Context, d domain.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.discounts[d.ID]
	if !ok {
		return store.ErrNotFound
	}
	// usage only moves through IncrementDiscountUsage
	d.UsedCount = current.UsedCount
	d.Code = current.Code
	d.Type = current.Type
	d.CreatedAt = current.CreatedAt
	if d.UsageLimit != nil && d.UsedCount > *d.UsageLimit {
		return store.ErrConflict
	}
	s.discounts[d.ID] = d
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saleView(id)
}

func (s *Store) saleView(id string) (*domain.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(*sale)
	out.Payments = append([]domain.Payment(nil), s.payments[id]...)
	sortPayments(out.Payments)
	out.PaidAmount = sumPayments(out.Payments)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for id, sale := range s.sales {
		if filter.CustomerID != "" && (sale.CustomerID == nil || *sale.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.PaymentStatus != "" && sale.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.SaleDate.Before(*filter.To) {
			continue
		}
		view, _ := s.saleView(id)
		out = append(out, *view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber > out[j].InvoiceNumber })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Sale{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entityType != "" && entry.EntityType != entityType {
			continue
		}
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.users[username] = u
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = append([]domain.SaleItem(nil), sale.Items...)
	out.Payments = nil
	return out
}

func sumPayments(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
