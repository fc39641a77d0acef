package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"possale/backend/internal/domain"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

type pgTx struct {
	tx *sqlx.Tx
}

var _ store.Tx = (*pgTx)(nil)

// ReserveStock is a single conditional decrement. Concurrent reservations on the same
// row queue on its lock and re-check the predicate against the committed value.
func (t *pgTx) ReserveStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity %d", domain.ErrInvalidQuantity, qty)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if err := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID); err != nil {
		return err
	}
	return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrInvalidQuantity, qty)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (t *pgTx) AppendInventory(ctx context.Context, entry domain.InventoryTransaction) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO inventory_transactions (`+ledgerColumns+`)
		VALUES (:id, :product_id, :transaction_type, :quantity, :reference_type, :reference_id,
			:sale_item_id, :notes, :created_by, :created_at)
	`, entry)
	return err
}

func (t *pgTx) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE discounts
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`, discountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if err := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM discounts WHERE id = $1)`, discountID); err != nil {
		return err
	}
	return store.ErrDiscountUsageExceeded
}

func (t *pgTx) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := t.tx.GetContext(ctx, &seq, `SELECT nextval('sale_invoice_seq')`); err != nil {
		return "", err
	}
	return xid.InvoiceNumber(seq, at), nil
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (:id, :invoice_number, :customer_id, :discount_id, :sale_date, :subtotal, :tax_amount,
			:item_discount_amount, :order_discount_amount, :discount_amount, :total_amount,
			:payment_status, :payment_method, :notes, :created_by, :cancelled_at)
	`, sale)
	if err != nil {
		return mapError(err)
	}
	for _, item := range sale.Items {
		_, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO sale_items (`+itemColumns+`)
			VALUES (:id, :sale_id, :product_id, :quantity, :unit_price, :tax_rate, :discount_amount,
				:tax_amount, :line_total)
		`, item)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (t *pgTx) GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE sales
		SET customer_id = :customer_id, payment_method = :payment_method, payment_status = :payment_status,
			notes = :notes, cancelled_at = :cancelled_at
		WHERE id = :id
	`, sale)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) InsertPayment(ctx context.Context, payment domain.Payment) error {
	if payment.ID == "" {
		payment.ID = xid.New()
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :sale_id, :kind, :payment_method, :amount, :transaction_id, :payment_date, :created_by)
	`, payment)
	return mapError(err)
}

func (t *pgTx) ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := t.tx.QueryxContext(ctx, `
		SELECT sale_item_id, COALESCE(SUM(quantity), 0)
		FROM inventory_transactions
		WHERE reference_type = $2 AND reference_id = $1 AND transaction_type = $3 AND sale_item_id IS NOT NULL
		GROUP BY sale_item_id
	`, saleID, domain.ReferenceSale, string(domain.InventoryReturn))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var itemID string
		var qty int
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		out[itemID] = qty
	}
	return out, rows.Err()
}

// LockCategories blocks concurrent reparenting until the tx ends so the cycle check
// runs against a stable tree.
func (t *pgTx) LockCategories(ctx context.Context) ([]domain.Category, error) {
	if _, err := t.tx.ExecContext(ctx, `LOCK TABLE categories IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, 32)
	err := t.tx.SelectContext(ctx, &categories, `SELECT id, name, parent_id, created_at FROM categories ORDER BY name`)
	return categories, err
}

func (t *pgTx) UpdateCategory(ctx context.Context, category domain.Category) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE categories SET name = :name, parent_id = :parent_id WHERE id = :id
	`, category)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) exists(ctx context.Context, query string, id string) error {
	var found bool
	if err := t.tx.GetContext(ctx, &found, query, id); err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}
