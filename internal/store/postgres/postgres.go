package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"possale/backend/internal/domain"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const (
	productColumns  = `id, sku, name, category_id, unit_price, cost_price, stock_quantity, initial_stock, min_stock_level, tax_rate, is_active, created_at, updated_at`
	discountColumns = `id, code, name, type, value, min_purchase_amount, max_discount_amount, start_date, end_date, usage_limit, used_count, is_active, created_at`
	saleColumns     = `id, invoice_number, customer_id, discount_id, sale_date, subtotal, tax_amount, item_discount_amount, order_discount_amount, discount_amount, total_amount, payment_status, payment_method, notes, created_by, cancelled_at`
	itemColumns     = `id, sale_id, product_id, quantity, unit_price, tax_rate, discount_amount, tax_amount, line_total`
	paymentColumns  = `id, sale_id, kind, payment_method, amount, transaction_id, payment_date, created_by`
	ledgerColumns   = `id, product_id, transaction_type, quantity, reference_type, reference_id, sale_item_id, notes, created_by, created_at`
)

type Store struct {
	db *sqlx.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetPriceSnapshot(ctx context.Context, productID string) (domain.PriceSnapshot, error) {
	var snap domain.PriceSnapshot
	err := s.db.GetContext(ctx, &snap, `SELECT id, unit_price, tax_rate, is_active FROM products WHERE id = $1`, productID)
	if err != nil {
		return domain.PriceSnapshot{}, notFound(err)
	}
	return snap, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	return products, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :sku, :name, :category_id, :unit_price, :cost_price, :stock_quantity, :initial_stock,
			:min_stock_level, :tax_rate, :is_active, :created_at, :updated_at)
	`, product)
	return mapError(err)
}

// UpdateProduct writes every patchable column. Stock, sku and initial stock are left alone.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, category_id = :category_id, unit_price = :unit_price, cost_price = :cost_price,
			min_stock_level = :min_stock_level, tax_rate = :tax_rate, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id
	`, product)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (s *Store) ListInventory(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	entries := make([]domain.InventoryTransaction, 0, 32)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT `+ledgerColumns+` FROM inventory_transactions
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	return entries, err
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, 32)
	err := s.db.SelectContext(ctx, &categories, `SELECT id, name, parent_id, created_at FROM categories ORDER BY name`)
	return categories, err
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	if err := s.db.GetContext(ctx, &c, `SELECT id, name, parent_id, created_at FROM categories WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, name, parent_id, created_at)
		VALUES (:id, :name, :parent_id, :created_at)
	`, category)
	return mapError(err)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 32)
	err := s.db.SelectContext(ctx, &customers, `SELECT id, name, phone, email, created_at FROM customers ORDER BY name`)
	return customers, err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	if err := s.db.GetContext(ctx, &c, `SELECT id, name, phone, email, created_at FROM customers WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES (:id, :name, :phone, :email, :created_at)
	`, customer)
	return mapError(err)
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	discounts := make([]domain.Discount, 0, 16)
	err := s.db.SelectContext(ctx, &discounts, `SELECT `+discountColumns+` FROM discounts ORDER BY name`)
	return discounts, err
}

func (s *Store) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	var d domain.Discount
	if err := s.db.GetContext(ctx, &d, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	var d domain.Discount
	if err := s.db.GetContext(ctx, &d, `SELECT `+discountColumns+` FROM discounts WHERE upper(code) = upper($1)`, code); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *Store) CreateDiscount(ctx context.Context, d domain.Discount) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO discounts (`+discountColumns+`)
		VALUES (:id, :code, :name, :type, :value, :min_purchase_amount, :max_discount_amount, :start_date,
			:end_date, :usage_limit, :used_count, :is_active, :created_at)
	`, d)
	return mapError(err)
}

// UpdateDiscount never writes used_count; the table check rejects a limit below it.
func (s *Store) UpdateDiscount(ctx context.Context, d domain.Discount) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE discounts
		SET name = :name, value = :value, min_purchase_amount = :min_purchase_amount,
			max_discount_amount = :max_discount_amount, start_date = :start_date, end_date = :end_date,
			usage_limit = :usage_limit, is_active = :is_active
		WHERE id = :id
	`, d)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", string(filter.PaymentStatus))
	}
	if filter.From != nil {
		add("sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("sale_date < $%d", *filter.To)
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY invoice_number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	sales := make([]domain.Sale, 0, limit)
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	items := make([]domain.SaleItem, 0, len(sales)*2)
	if err := s.db.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = ANY($1) ORDER BY id`, ids); err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(sales))
	if err := s.db.SelectContext(ctx, &payments, `SELECT `+paymentColumns+` FROM payments WHERE sale_id = ANY($1) ORDER BY payment_date, id`, ids); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(sales))
	for i := range sales {
		index[sales[i].ID] = i
		sales[i].Items = []domain.SaleItem{}
	}
	for _, item := range items {
		i := index[item.SaleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	for _, p := range payments {
		i := index[p.SaleID]
		sales[i].Payments = append(sales[i].Payments, p)
		sales[i].PaidAmount = sales[i].PaidAmount.Add(p.Amount)
	}
	return sales, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :actor_id, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	return logs, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.ID == "" {
		user.ID = xid.New()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, active, created_at)
		VALUES (:id, :username, :password_hash, :role, :active, :created_at)
	`, user)
	return mapError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	err := s.db.SelectContext(ctx, &users, `SELECT id, username, password_hash, role, active, created_at FROM users ORDER BY username`)
	return users, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// loadSale reads a sale with its items and payments through either the pool or a tx.
func loadSale(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var sale domain.Sale
	if err := sqlx.GetContext(ctx, q, &sale, query, id); err != nil {
		return nil, notFound(err)
	}
	sale.Items = make([]domain.SaleItem, 0, 4)
	if err := sqlx.SelectContext(ctx, q, &sale.Items, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = $1 ORDER BY id`, id); err != nil {
		return nil, err
	}
	if err := sqlx.SelectContext(ctx, q, &sale.Payments, `SELECT `+paymentColumns+` FROM payments WHERE sale_id = $1 ORDER BY payment_date, id`, id); err != nil {
		return nil, err
	}
	for _, p := range sale.Payments {
		sale.PaidAmount = sale.PaidAmount.Add(p.Amount)
	}
	return &sale, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapError turns constraint and serialization failures into store.ErrConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Message)
		case "23514":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
