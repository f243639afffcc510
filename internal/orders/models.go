package orders

import (
	"math"
	"time"
)

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	StockQuantity int       `json:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Order struct {
	ID         string      `json:"id"`
	Customer   string      `json:"customer"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderItem is owned by its order. UnitPriceCents and ProductName are
// snapshots taken when the line was reserved.
type OrderItem struct {
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// ItemInput is one requested (product, quantity) line.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Movement records one stock adjustment applied by the ledger.
type Movement struct {
	ProductID  string `json:"product_id"`
	Delta      int    `json:"delta"`
	StockAfter int    `json:"stock_after"`
}

// ProductPatch carries a partial product update; nil fields are left alone.
type ProductPatch struct {
	Name          *string
	Description   *string
	PriceCents    *int64
	StockQuantity *int
}

// lineTotal multiplies in cents and reports false on int64 overflow.
func lineTotal(qty int, priceCents int64) (int64, bool) {
	if qty > 0 && priceCents > 0 && int64(qty) > math.MaxInt64/priceCents {
		return 0, false
	}
	return int64(qty) * priceCents, true
}

// newItem expects validate to have ruled out overflow.
func newItem(orderID string, p Product, qty int) OrderItem {
	return OrderItem{
		OrderID:        orderID,
		ProductID:      p.ID,
		ProductName:    p.Name,
		Quantity:       qty,
		UnitPriceCents: p.PriceCents,
		LineTotalCents: int64(qty) * p.PriceCents,
	}
}

func sumItems(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotalCents
	}
	return total
}
