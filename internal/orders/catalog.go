package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog manages product rows. Stock edits made here are direct
// corrections; order-driven stock changes go through Manager.
type Catalog struct {
	runner TxRunner
	log    *zap.Logger
	now    func() time.Time
}

func NewCatalog(runner TxRunner, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{runner: runner, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (c *Catalog) Create(ctx context.Context, p Product) (Product, error) {
	if p.PriceCents <= 0 {
		return Product{}, ErrInvalidPrice
	}
	now := c.now()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	err := c.runner.InTx(ctx, func(tx Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	if err != nil {
		return Product{}, txFailure("create product", err)
	}
	c.log.Info("product created", zap.String("product_id", p.ID), zap.Int("stock_quantity", p.StockQuantity))
	return p, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := c.runner.InTx(ctx, func(tx Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	return p, txFailure("get product", err)
}

func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	var out []Product
	err := c.runner.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListProducts(ctx)
		return err
	})
	return out, txFailure("list products", err)
}

// Update applies patch under the product's row lock. Existing orders keep
// their price snapshots.
func (c *Catalog) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	var p Product
	err := c.runner.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockProducts(ctx, []string{id})
		if err != nil {
			return err
		}
		var ok bool
		if p, ok = locked[id]; !ok {
			return notFound(KindProduct, id)
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = patch.Description
		}
		if patch.PriceCents != nil {
			if *patch.PriceCents <= 0 {
				return ErrInvalidPrice
			}
			p.PriceCents = *patch.PriceCents
		}
		if patch.StockQuantity != nil {
			p.StockQuantity = *patch.StockQuantity
		}
		p.UpdatedAt = c.now()
		return tx.UpdateProduct(ctx, p)
	})
	if err != nil {
		return Product{}, txFailure("update product", err)
	}
	c.log.Info("product updated", zap.String("product_id", p.ID))
	return p, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	err := c.runner.InTx(ctx, func(tx Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return txFailure("delete product", err)
	}
	c.log.Info("product deleted", zap.String("product_id", id))
	return nil
}
