package orders

import "context"

// TxRunner opens one transaction per call and hands fn a handle scoped to
// it. If fn returns an error, or the commit fails, every write made through
// the handle is discarded.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the row-level surface the core needs from storage. Lookups of a
// missing row return *NotFoundError.
type Tx interface {
	// LockProducts loads and exclusively locks the given products for the
	// rest of the transaction. Missing IDs are absent from the result.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// AdjustStock adds delta to a product's stock only if the result stays
	// non-negative. ok is false when the guard rejected the change or the
	// product does not exist.
	AdjustStock(ctx context.Context, productID string, delta int) (stockAfter int, ok bool, err error)

	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	// DeleteProduct returns ErrProductInUse when an order item references it.
	DeleteProduct(ctx context.Context, id string) error

	// LockOrder loads an order with its items and locks the order row.
	LockOrder(ctx context.Context, id string) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	InsertOrder(ctx context.Context, o Order) error
	// UpdateOrder writes customer, total and updated_at.
	UpdateOrder(ctx context.Context, o Order) error
	// ReplaceItems deletes every item of the order and inserts items.
	ReplaceItems(ctx context.Context, orderID string, items []OrderItem) error
	// DeleteOrder removes the order; its items go with it.
	DeleteOrder(ctx context.Context, id string) error
}
