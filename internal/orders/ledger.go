package orders

import (
	"context"
	"errors"
)

// Ledger is the only writer of product stock. Each call is a single guarded
// read-modify-write on the caller's transaction.
type Ledger struct{}

// Reserve takes qty units of productID. On failure stock is unchanged.
func (Ledger) Reserve(ctx context.Context, tx Tx, productID string, qty int) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	after, ok, err := tx.AdjustStock(ctx, productID, -qty)
	if err != nil {
		return Movement{}, err
	}
	if !ok {
		// guard rejected: tell "missing" apart from "not enough"
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return Movement{}, err
		}
		return Movement{}, &InsufficientStockError{ProductID: productID, Available: p.StockQuantity, Requested: qty}
	}
	return Movement{ProductID: productID, Delta: -qty, StockAfter: after}, nil
}

// Release gives qty units back to productID.
func (Ledger) Release(ctx context.Context, tx Tx, productID string, qty int) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	after, ok, err := tx.AdjustStock(ctx, productID, qty)
	if err != nil {
		return Movement{}, err
	}
	if !ok {
		return Movement{}, notFound(KindProduct, productID)
	}
	return Movement{ProductID: productID, Delta: qty, StockAfter: after}, nil
}

// IsInsufficientStock unwraps err into an InsufficientStockError.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var is *InsufficientStockError
	ok := errors.As(err, &is)
	return is, ok
}
