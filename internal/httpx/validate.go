package httpx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

const maxNameLen = 100

// maxPrice keeps prices far from the int64 cents limit.
var maxPrice = decimal.New(100_000_000_00, -2)

func validName(field, s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(s) > maxNameLen {
		return fmt.Errorf("%s must be at most %d characters", field, maxNameLen)
	}
	return nil
}

func validPrice(d decimal.Decimal) error {
	if !d.IsPositive() {
		return errors.New("price must be greater than zero")
	}
	if d.GreaterThan(maxPrice) {
		return fmt.Errorf("price must be at most %s", maxPrice.StringFixed(2))
	}
	if !d.Equal(d.Round(2)) {
		return errors.New("price must have at most two decimal places")
	}
	return nil
}

func validStock(n int) error {
	if n < 0 {
		return errors.New("stock_quantity must be zero or greater")
	}
	return nil
}

func validItems(items []orders.ItemInput) error {
	if len(items) == 0 {
		return errors.New("items must contain at least one item")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("items[%d].product_id is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be greater than zero", i)
		}
	}
	return nil
}

func (r CreateProductReq) validate() error {
	if err := validName("name", r.Name); err != nil {
		return err
	}
	if err := validPrice(r.Price); err != nil {
		return err
	}
	return validStock(r.StockQuantity)
}

func (r UpdateProductReq) validate() error {
	if r.Name != nil {
		if err := validName("name", *r.Name); err != nil {
			return err
		}
	}
	if r.Price != nil {
		if err := validPrice(*r.Price); err != nil {
			return err
		}
	}
	if r.StockQuantity != nil {
		return validStock(*r.StockQuantity)
	}
	return nil
}

func (r CreateOrderReq) validate() error {
	if err := validName("customer", r.Customer); err != nil {
		return err
	}
	return validItems(r.Items)
}

func (r UpdateOrderReq) validate() error {
	if r.Customer != nil {
		if err := validName("customer", *r.Customer); err != nil {
			return err
		}
	}
	if r.Items != nil {
		return validItems(r.Items)
	}
	return nil
}
