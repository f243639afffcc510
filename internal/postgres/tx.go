package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

// Runner implements orders.TxRunner on a pgx pool. Stock rows are locked
// with SELECT ... FOR UPDATE and decremented with a guarded UPDATE, so READ
// COMMITTED is enough to keep concurrent reservations from overselling.
type Runner struct{ DB *pgxpool.Pool }

func (r *Runner) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

const productCols = `id, name, description, price_cents, stock_quantity, created_at, updated_at`

type pgTx struct{ tx pgx.Tx }

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *pgTx) AdjustStock(ctx context.Context, id string, delta int) (int, bool, error) {
	var after int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity`, id, delta).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return after, true, nil
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, &orders.NotFoundError{Kind: orders.KindProduct, ID: id}
	}
	return p, err
}

func (t *pgTx) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertProduct(ctx context.Context, p orders.Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(id, name, description, price_cents, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Description, p.PriceCents, p.StockQuantity, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *pgTx) UpdateProduct(ctx context.Context, p orders.Product) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET name = $2, description = $3, price_cents = $4, stock_quantity = $5, updated_at = $6
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.PriceCents, p.StockQuantity, p.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: orders.KindProduct, ID: p.ID}
	}
	return nil
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return orders.ErrProductInUse
		}
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: orders.KindProduct, ID: id}
	}
	return nil
}

const orderCols = `id, customer, total_cents, created_at, updated_at`

func (t *pgTx) loadOrder(ctx context.Context, q, id string) (orders.Order, error) {
	var o orders.Order
	err := t.tx.QueryRow(ctx, q, id).Scan(&o.ID, &o.Customer, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &orders.NotFoundError{Kind: orders.KindOrder, ID: id}
	}
	if err != nil {
		return orders.Order{}, err
	}
	items, err := t.items(ctx, []string{id})
	if err != nil {
		return orders.Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.loadOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.loadOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
}

func (t *pgTx) ListOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	out := []orders.Order{}
	ids := []string{}
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.Customer, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := t.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (t *pgTx) items(ctx context.Context, orderIDs []string) (map[string][]orders.OrderItem, error) {
	out := make(map[string][]orders.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price_cents, line_total_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPriceCents, &it.LineTotalCents); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, o orders.Order) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, customer, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.Customer, o.TotalCents, o.CreatedAt, o.UpdatedAt); err != nil {
		return err
	}
	return t.insertItems(ctx, o.ID, o.Items)
}

func (t *pgTx) insertItems(ctx context.Context, orderID string, items []orders.OrderItem) error {
	n, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "position", "product_id", "product_name", "quantity", "unit_price_cents", "line_total_cents"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{orderID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPriceCents, it.LineTotalCents}, nil
		}),
	)
	if err != nil {
		return err
	}
	if int(n) != len(items) {
		return fmt.Errorf("insert order items: wrote %d of %d rows", n, len(items))
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o orders.Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET customer = $2, total_cents = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.Customer, o.TotalCents, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: orders.KindOrder, ID: o.ID}
	}
	return nil
}

func (t *pgTx) ReplaceItems(ctx context.Context, orderID string, items []orders.OrderItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return t.insertItems(ctx, orderID, items)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: orders.KindOrder, ID: id}
	}
	return nil
}
