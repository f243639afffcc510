package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

type CreateProductReq struct {
	Name          string          `json:"name"`
	Description   *string         `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

type UpdateProductReq struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
}

type ProductResp struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateOrderReq struct {
	Customer string             `json:"customer"`
	Items    []orders.ItemInput `json:"items"`
}

// UpdateOrderReq: an absent or null "items" keeps the current lines.
type UpdateOrderReq struct {
	Customer *string            `json:"customer"`
	Items    []orders.ItemInput `json:"items"`
}

type OrderItemResp struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type OrderResp struct {
	ID        string          `json:"id"`
	Customer  string          `json:"customer"`
	Items     []OrderItemResp `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func money(cents int64) decimal.Decimal { return decimal.New(cents, -2) }

func toCents(d decimal.Decimal) int64 { return d.Shift(2).IntPart() }

func toProductResp(p orders.Product) ProductResp {
	return ProductResp{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         money(p.PriceCents),
		StockQuantity: p.StockQuantity,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toOrderResp(o orders.Order) OrderResp {
	items := make([]OrderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResp{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPriceCents),
			LineTotal:   money(it.LineTotalCents),
		})
	}
	return OrderResp{
		ID:        o.ID,
		Customer:  o.Customer,
		Items:     items,
		Total:     money(o.TotalCents),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}
