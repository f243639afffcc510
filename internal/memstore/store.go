// Package memstore is an in-process implementation of orders.TxRunner.
// Transactions run one at a time against a private copy of the data, which
// replaces the shared state only when fn succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

type Store struct {
	mu   sync.Mutex
	data state
}

type state struct {
	products map[string]orders.Product
	orders   map[string]orders.Order
}

func New() *Store {
	return &Store{data: state{
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
	}}
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{st: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.st
	return nil
}

// Seed inserts products directly, outside any transaction.
func (s *Store) Seed(ps ...orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.data.products[p.ID] = p
	}
}

func (st state) clone() state {
	out := state{
		products: make(map[string]orders.Product, len(st.products)),
		orders:   make(map[string]orders.Order, len(st.orders)),
	}
	for k, v := range st.products {
		out.products[k] = v
	}
	for k, v := range st.orders {
		v.Items = append([]orders.OrderItem(nil), v.Items...)
		out.orders[k] = v
	}
	return out
}

type memTx struct{ st state }

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) AdjustStock(_ context.Context, id string, delta int) (int, bool, error) {
	p, ok := t.st.products[id]
	if !ok || p.StockQuantity+delta < 0 {
		return 0, false, nil
	}
	p.StockQuantity += delta
	t.st.products[id] = p
	return p.StockQuantity, true, nil
}

func (t *memTx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return orders.Product{}, &orders.NotFoundError{Kind: orders.KindProduct, ID: id}
	}
	return p, nil
}

func (t *memTx) ListProducts(context.Context) ([]orders.Product, error) {
	out := make([]orders.Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) InsertProduct(_ context.Context, p orders.Product) error {
	t.st.products[p.ID] = p
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, p orders.Product) error {
	if _, ok := t.st.products[p.ID]; !ok {
		return &orders.NotFoundError{Kind: orders.KindProduct, ID: p.ID}
	}
	t.st.products[p.ID] = p
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.st.products[id]; !ok {
		return &orders.NotFoundError{Kind: orders.KindProduct, ID: id}
	}
	for _, o := range t.st.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return orders.ErrProductInUse
			}
		}
	}
	delete(t.st.products, id)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) GetOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, &orders.NotFoundError{Kind: orders.KindOrder, ID: id}
	}
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o, nil
}

func (t *memTx) ListOrders(context.Context) ([]orders.Order, error) {
	out := make([]orders.Order, 0, len(t.st.orders))
	for _, o := range t.st.orders {
		o.Items = append([]orders.OrderItem(nil), o.Items...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o orders.Order) error {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	t.st.orders[o.ID] = o
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o orders.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return &orders.NotFoundError{Kind: orders.KindOrder, ID: o.ID}
	}
	cur.Customer = o.Customer
	cur.TotalCents = o.TotalCents
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *memTx) ReplaceItems(_ context.Context, orderID string, items []orders.OrderItem) error {
	cur, ok := t.st.orders[orderID]
	if !ok {
		return &orders.NotFoundError{Kind: orders.KindOrder, ID: orderID}
	}
	cur.Items = append([]orders.OrderItem(nil), items...)
	t.st.orders[orderID] = cur
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.st.orders[id]; !ok {
		return &orders.NotFoundError{Kind: orders.KindOrder, ID: id}
	}
	delete(t.st.orders, id)
	return nil
}
