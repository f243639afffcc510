package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables when they are missing. It does not alter
// existing tables.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT,
	price_cents    BIGINT NOT NULL CHECK (price_cents > 0),
	stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_name_idx ON products (name);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	customer    TEXT NOT NULL CHECK (customer <> ''),
	total_cents BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	product_id       TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
	product_name     TEXT NOT NULL,
	quantity         INTEGER NOT NULL CHECK (quantity > 0),
	unit_price_cents BIGINT NOT NULL,
	line_total_cents BIGINT NOT NULL,
	PRIMARY KEY (order_id, position)
);
CREATE INDEX IF NOT EXISTS order_items_product_idx ON order_items (product_id);
`
