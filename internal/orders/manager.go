package orders

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/go-stock-orders/internal/orders"

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes a committed order operation and the stock it moved.
type Change struct {
	Kind      ChangeKind
	Order     Order
	Movements []Movement
}

// Notifier is told about every committed change, after commit.
type Notifier interface {
	OrderChanged(ctx context.Context, c Change)
}

// Notifiers fans a change out to several listeners in order.
type Notifiers []Notifier

func (ns Notifiers) OrderChanged(ctx context.Context, c Change) {
	for _, n := range ns {
		if n != nil {
			n.OrderChanged(ctx, c)
		}
	}
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	OrderOp(op, result string)
	StockMoved(moves []Movement)
}

// UpdateInput: nil Customer keeps the current customer, nil Items keeps the
// current items. A non-nil empty Items is rejected.
type UpdateInput struct {
	Customer *string
	Items    []ItemInput
}

// Manager runs the order lifecycle: validate, reserve, total, persist, and
// release on edit or delete. It is the only caller of Ledger for orders.
type Manager struct {
	runner   TxRunner
	ledger   Ledger
	notifier Notifier
	recorder Recorder
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }
func WithRecorder(r Recorder) Option { return func(m *Manager) { m.recorder = r } }
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(runner TxRunner, opts ...Option) *Manager {
	m := &Manager{
		runner: runner,
		log:    zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create validates every line against locked stock, then reserves all of
// them and persists the order in the same transaction.
func (m *Manager) Create(ctx context.Context, customer string, items []ItemInput) (Order, error) {
	ctx, span := m.tracer.Start(ctx, "orders.create", trace.WithAttributes(
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	if len(items) == 0 {
		return Order{}, m.fail(span, "create", "", ErrEmptyOrder)
	}

	var (
		order Order
		moves []Movement
	)
	err := m.runner.InTx(ctx, func(tx Tx) error {
		now := m.now()
		order = Order{ID: m.newID(), Customer: customer, CreatedAt: now, UpdatedAt: now}

		stock, err := tx.LockProducts(ctx, lockOrder(items, nil))
		if err != nil {
			return err
		}
		if err := validate(items, stock); err != nil {
			return err
		}
		order.Items, moves, err = m.reserve(ctx, tx, order.ID, items, stock)
		if err != nil {
			return err
		}
		order.TotalCents = sumItems(order.Items)
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, m.fail(span, "create", "", txFailure("create order", err))
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	m.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("customer", order.Customer),
		zap.Int64("total_cents", order.TotalCents),
	)
	m.committed(ctx, "create", Change{Kind: ChangeCreated, Order: order, Movements: moves})
	return order, nil
}

// Update changes the customer and/or replaces the items. Replacement releases
// the old reservations and reserves the new lines in one transaction; if any
// new line fails validation, the releases are rolled back with it.
func (m *Manager) Update(ctx context.Context, orderID string, in UpdateInput) (Order, error) {
	ctx, span := m.tracer.Start(ctx, "orders.update", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Bool("order.replace_items", in.Items != nil),
	))
	defer span.End()

	if in.Items != nil && len(in.Items) == 0 {
		return Order{}, m.fail(span, "update", orderID, ErrEmptyOrder)
	}

	var (
		order Order
		moves []Movement
	)
	err := m.runner.InTx(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if in.Customer != nil {
			order.Customer = *in.Customer
		}
		if in.Items != nil {
			stock, err := tx.LockProducts(ctx, lockOrder(in.Items, order.Items))
			if err != nil {
				return err
			}
			released, err := m.release(ctx, tx, order.Items, stock)
			if err != nil {
				return err
			}
			if err := validate(in.Items, stock); err != nil {
				return err
			}
			items, reserved, err := m.reserve(ctx, tx, order.ID, in.Items, stock)
			if err != nil {
				return err
			}
			if err := tx.ReplaceItems(ctx, order.ID, items); err != nil {
				return err
			}
			order.Items = items
			order.TotalCents = sumItems(items)
			moves = append(released, reserved...)
		}
		order.UpdatedAt = m.now()
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, m.fail(span, "update", orderID, txFailure("update order", err))
	}

	m.log.Info("order updated",
		zap.String("order_id", order.ID),
		zap.Bool("items_replaced", in.Items != nil),
		zap.Int64("total_cents", order.TotalCents),
	)
	m.committed(ctx, "update", Change{Kind: ChangeUpdated, Order: order, Movements: moves})
	return order, nil
}

// Delete releases every reservation of the order and removes it. The
// deleted order is returned.
func (m *Manager) Delete(ctx context.Context, orderID string) (Order, error) {
	ctx, span := m.tracer.Start(ctx, "orders.delete", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var (
		order Order
		moves []Movement
	)
	err := m.runner.InTx(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		stock, err := tx.LockProducts(ctx, lockOrder(nil, order.Items))
		if err != nil {
			return err
		}
		moves, err = m.release(ctx, tx, order.Items, stock)
		if err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, order.ID)
	})
	if err != nil {
		return Order{}, m.fail(span, "delete", orderID, txFailure("delete order", err))
	}

	m.log.Info("order deleted", zap.String("order_id", order.ID), zap.Int("released_lines", len(moves)))
	m.committed(ctx, "delete", Change{Kind: ChangeDeleted, Order: order, Movements: moves})
	return order, nil
}

func (m *Manager) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := m.runner.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return o, txFailure("get order", err)
}

func (m *Manager) List(ctx context.Context) ([]Order, error) {
	var out []Order
	err := m.runner.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListOrders(ctx)
		return err
	})
	return out, txFailure("list orders", err)
}

// validate checks every line in list order against the locked snapshot
// without writing anything. Repeated lines for one product draw from the
// same remaining balance. The order total must fit in int64 cents.
func validate(items []ItemInput, stock map[string]Product) error {
	remaining := make(map[string]int, len(stock))
	for id, p := range stock {
		remaining[id] = p.StockQuantity
	}
	var total int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		p, ok := stock[it.ProductID]
		if !ok {
			return notFound(KindProduct, it.ProductID)
		}
		if avail := remaining[it.ProductID]; avail < it.Quantity {
			return &InsufficientStockError{ProductID: it.ProductID, Available: avail, Requested: it.Quantity}
		}
		line, ok := lineTotal(it.Quantity, p.PriceCents)
		if !ok || total > math.MaxInt64-line {
			return ErrAmountTooLarge
		}
		total += line
		remaining[it.ProductID] -= it.Quantity
	}
	return nil
}

func (m *Manager) reserve(ctx context.Context, tx Tx, orderID string, items []ItemInput, stock map[string]Product) ([]OrderItem, []Movement, error) {
	out := make([]OrderItem, 0, len(items))
	moves := make([]Movement, 0, len(items))
	for _, it := range items {
		mv, err := m.ledger.Reserve(ctx, tx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, nil, err
		}
		p := stock[it.ProductID]
		out = append(out, newItem(orderID, p, it.Quantity))
		p.StockQuantity = mv.StockAfter
		stock[it.ProductID] = p
		moves = append(moves, mv)
	}
	return out, moves, nil
}

// release returns each line's quantity and keeps the locked snapshot in
// step so a following validate sees the released units.
func (m *Manager) release(ctx context.Context, tx Tx, items []OrderItem, stock map[string]Product) ([]Movement, error) {
	moves := make([]Movement, 0, len(items))
	for _, it := range items {
		mv, err := m.ledger.Release(ctx, tx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if p, ok := stock[it.ProductID]; ok {
			p.StockQuantity = mv.StockAfter
			stock[it.ProductID] = p
		}
		moves = append(moves, mv)
	}
	return moves, nil
}

func (m *Manager) committed(ctx context.Context, op string, c Change) {
	if m.recorder != nil {
		m.recorder.OrderOp(op, "ok")
		m.recorder.StockMoved(c.Movements)
	}
	if m.notifier != nil {
		m.notifier.OrderChanged(ctx, c)
	}
}

func (m *Manager) fail(span trace.Span, op, orderID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	result := resultOf(err)
	if m.recorder != nil {
		m.recorder.OrderOp(op, result)
	}
	fields := []zap.Field{zap.String("op", op), zap.String("result", result), zap.Error(err)}
	if orderID != "" {
		fields = append(fields, zap.String("order_id", orderID))
	}
	if result == "tx_failure" {
		m.log.Error("order operation aborted", fields...)
	} else {
		m.log.Info("order operation rejected", fields...)
	}
	return err
}

func resultOf(err error) string {
	var tf *TxFailureError
	switch {
	case errors.As(err, &tf):
		return "tx_failure"
	case IsNotFound(err, ""):
		return "not_found"
	default:
		if _, ok := IsInsufficientStock(err); ok {
			return "insufficient_stock"
		}
		return "invalid"
	}
}

// lockOrder returns the distinct product IDs of both sets in ascending
// order, so concurrent transactions take row locks in the same sequence.
func lockOrder(in []ItemInput, held []OrderItem) []string {
	seen := make(map[string]struct{}, len(in)+len(held))
	for _, it := range in {
		seen[it.ProductID] = struct{}{}
	}
	for _, it := range held {
		seen[it.ProductID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
