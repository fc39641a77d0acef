package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"possale/backend/internal/catalog"
	"possale/backend/internal/domain"
	"possale/backend/internal/money"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:            xid.New(),
		SKU:           strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:          strings.TrimSpace(req.Name),
		CategoryID:    trimmed(req.CategoryID),
		UnitPrice:     money.Round(req.UnitPrice),
		StockQuantity: req.StockQuantity,
		InitialStock:  req.StockQuantity,
		MinStockLevel: req.MinStockLevel,
		TaxRate:       req.TaxRate,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.CostPrice.Valid {
		product.CostPrice = decimal.NewNullDecimal(money.Round(req.CostPrice.Decimal))
	}

	verr := &domain.ValidationError{}
	if product.SKU == "" {
		verr.Add("sku", domain.ErrInvalidInput, "sku is required")
	}
	if product.StockQuantity < 0 {
		verr.Add("stockQuantity", domain.ErrInvalidQuantity, "stockQuantity must not be negative")
	}
	if err := s.validateProduct(ctx, product, verr); err != nil {
		return domain.Product{}, err
	}
	if err := verr.Err(); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("sku=%s,price=%s,stock=%d",
		product.SKU, product.UnitPrice.StringFixed(money.Scale), product.StockQuantity))
	return product, nil
}

// UpdateProduct applies a patch. Stock is not patchable and only moves through
// sales, returns and adjustments.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if v, ok := patch.Name.Get(); ok {
		updated.Name = strings.TrimSpace(v)
	}
	if patch.CategoryID.Set {
		updated.CategoryID = trimmed(patch.CategoryID.Ptr())
	}
	if v, ok := patch.UnitPrice.Get(); ok {
		updated.UnitPrice = money.Round(v)
	}
	if patch.CostPrice.Set {
		updated.CostPrice = decimal.NullDecimal{Decimal: money.Round(patch.CostPrice.Value), Valid: patch.CostPrice.Valid}
	}
	if v, ok := patch.MinStockLevel.Get(); ok {
		updated.MinStockLevel = v
	}
	if v, ok := patch.TaxRate.Get(); ok {
		updated.TaxRate = v
	}
	if v, ok := patch.IsActive.Get(); ok {
		updated.IsActive = v
	}
	updated.UpdatedAt = s.now()

	verr := &domain.ValidationError{}
	if err := s.validateProduct(ctx, updated, verr); err != nil {
		return domain.Product{}, err
	}
	if err := verr.Err(); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", updated.ID, fmt.Sprintf("price=%s,active=%t",
		updated.UnitPrice.StringFixed(money.Scale), updated.IsActive))
	return s.GetProduct(ctx, updated.ID)
}

// validateProduct adds field problems to verr. Only a storage failure is returned.
func (s *Service) validateProduct(ctx context.Context, p domain.Product, verr *domain.ValidationError) error {
	if p.Name == "" {
		verr.Add("name", domain.ErrInvalidInput, "name is required")
	}
	if !p.UnitPrice.IsPositive() {
		verr.Add("unitPrice", domain.ErrInvalidUnitPrice, "")
	}
	if p.CostPrice.Valid && p.CostPrice.Decimal.IsNegative() {
		verr.Add("costPrice", money.ErrInvalidAmount, "costPrice must not be negative")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(hundred) {
		verr.Add("taxRate", domain.ErrInvalidInput, "taxRate must be between 0 and 100")
	}
	if p.MinStockLevel < 0 {
		verr.Add("minStockLevel", domain.ErrInvalidInput, "minStockLevel must not be negative")
	}
	if p.CategoryID != nil {
		_, err := s.repo.GetCategory(ctx, *p.CategoryID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			verr.Add("categoryId", domain.ErrCategoryNotFound, "category not found")
		case err != nil:
			return fmt.Errorf("load category %s: %w", *p.CategoryID, err)
		}
	}
	return nil
}

// AdjustStock corrects stock outside of a sale, for example after a count. The
// ledger row and the stock change commit together.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.InventoryTransaction, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.InventoryTransaction{}, err
	}

	productID := strings.TrimSpace(req.ProductID)
	verr := &domain.ValidationError{}
	if productID == "" {
		verr.Add("productId", domain.ErrInvalidInput, "productId is required")
	}
	if req.Quantity == 0 {
		verr.Add("quantity", domain.ErrInvalidQuantity, "quantity must not be zero")
	}
	if err := verr.Err(); err != nil {
		return domain.InventoryTransaction{}, err
	}

	entry := domain.InventoryTransaction{
		ID:              xid.New(),
		ProductID:       productID,
		TransactionType: domain.InventoryAdjustment,
		Quantity:        req.Quantity,
		ReferenceType:   domain.ReferenceAdjustment,
		CreatedBy:       actorRef(ctx),
		CreatedAt:       s.now(),
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		entry.Notes = &notes
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if req.Quantity < 0 {
			err = tx.ReserveStock(ctx, productID, -req.Quantity)
		} else {
			err = tx.ReleaseStock(ctx, productID, req.Quantity)
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrProductNotFound
			}
			return err
		}
		return tx.AppendInventory(ctx, entry)
	})
	if err != nil {
		return domain.InventoryTransaction{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", productID, fmt.Sprintf("qty=%d", req.Quantity))
	return entry, nil
}

// ProductLedger returns the ledger for a product and checks that it explains the
// current stock level.
func (s *Service) ProductLedger(ctx context.Context, id string) (domain.LedgerReport, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.LedgerReport{}, err
	}
	entries, err := s.repo.ListInventory(ctx, product.ID)
	if err != nil {
		return domain.LedgerReport{}, err
	}

	sum := 0
	for _, entry := range entries {
		sum += entry.Quantity
	}
	return domain.LedgerReport{
		ProductID:     product.ID,
		InitialStock:  product.InitialStock,
		LedgerSum:     sum,
		StockQuantity: product.StockQuantity,
		Reconciled:    product.InitialStock+sum == product.StockQuantity,
		Entries:       entries,
	}, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]*catalog.Node, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := catalog.NewTree(categories)
	if err != nil {
		return nil, err
	}
	return tree.Nested(), nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	category := domain.Category{
		ID:        xid.New(),
		Name:      strings.TrimSpace(req.Name),
		ParentID:  trimmed(req.ParentID),
		CreatedAt: s.now(),
	}
	if category.Name == "" {
		return domain.Category{}, domain.Invalid("name", domain.ErrInvalidInput, "name is required")
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Category{}, domain.Invalid("parentId", domain.ErrCategoryNotFound, "parent category not found")
		}
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", category.ID, "name="+category.Name)
	return category, nil
}

// UpdateCategory renames or moves a category. Moves are checked against the current
// tree under a lock so concurrent moves cannot close a cycle.
func (s *Service) UpdateCategory(ctx context.Context, id string, patch domain.CategoryPatch) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	id = strings.TrimSpace(id)

	var updated domain.Category
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		categories, err := tx.LockCategories(ctx)
		if err != nil {
			return err
		}
		tree, err := catalog.NewTree(categories)
		if err != nil {
			return err
		}
		if !tree.Has(id) {
			return domain.ErrCategoryNotFound
		}
		for _, c := range categories {
			if c.ID == id {
				updated = c
				break
			}
		}

		if v, ok := patch.Name.Get(); ok {
			name := strings.TrimSpace(v)
			if name == "" {
				return domain.Invalid("name", domain.ErrInvalidInput, "name is required")
			}
			updated.Name = name
		}
		if patch.ParentID.Set {
			parent := trimmed(patch.ParentID.Ptr())
			newParent := ""
			if parent != nil {
				newParent = *parent
			}
			if err := tree.CheckReparent(id, newParent); err != nil {
				if errors.Is(err, domain.ErrCategoryCycle) {
					return domain.Invalid("parentId", err, "")
				}
				return domain.Invalid("parentId", domain.ErrCategoryNotFound, "parent category not found")
			}
			updated.ParentID = parent
		}
		return tx.UpdateCategory(ctx, updated)
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", id, "name="+updated.Name)
	return updated, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:        xid.New(),
		Name:      strings.TrimSpace(req.Name),
		Phone:     trimmed(req.Phone),
		Email:     trimmed(req.Email),
		CreatedAt: s.now(),
	}
	verr := &domain.ValidationError{}
	if customer.Name == "" {
		verr.Add("name", domain.ErrInvalidInput, "name is required")
	}
	if customer.Email != nil && !strings.Contains(*customer.Email, "@") {
		verr.Add("email", domain.ErrInvalidInput, "email is not valid")
	}
	if err := verr.Err(); err != nil {
		return domain.Customer{}, err
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", customer.ID, "name="+customer.Name)
	return customer, nil
}
