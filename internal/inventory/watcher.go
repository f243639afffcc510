// Package inventory watches committed order events and raises low-stock
// alerts. It never changes stock; the order API owns every reservation.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-stock-orders/internal/kafka"
	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

const dedupScope = "inventory"

// AlertCounter is satisfied by metrics.Metrics.
type AlertCounter interface {
	LowStock(productID string)
}

type Watcher struct {
	Redis     redis.Cmdable
	Cache     *redisx.Cache    // optional
	Alerts    orders.Publisher // publishes to orders.TopicStockLow
	Counter   AlertCounter     // optional
	Threshold int
	Service   string
	Log       *zap.Logger
}

// HandleOrderEvent is installed as the consumer handler for every order topic.
func (w *Watcher) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderDeleted:
	default:
		return nil
	}

	// Decode before marking: nothing after the mark can fail, so a marked
	// event is always a handled one.
	p, err := kafkax.UnwrapPayload[orders.OrderChangedPayload](env.Payload)
	if err != nil {
		return err
	}

	first, err := redisx.MarkSeen(ctx, w.Redis, fmt.Sprintf(redisx.KeyDedup, dedupScope, env.EventID), redisx.TTLDedup)
	if err != nil {
		// at-least-once: a redis outage must not stall the watcher
		w.log().Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
	} else if !first {
		w.log().Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	if w.Cache != nil && len(p.Movements) > 0 {
		ids := make([]string, 0, len(p.Movements))
		for _, mv := range p.Movements {
			ids = append(ids, mv.ProductID)
		}
		w.Cache.InvalidateProducts(ctx, ids...)
	}

	for _, mv := range LowStock(p.Movements, w.Threshold) {
		w.alert(env, p.OrderID, mv)
	}
	return nil
}

// LowStock picks the reservations that left a product at or below threshold.
// Releases only raise stock and never alert. A product reserved on several
// lines reports its last movement.
func LowStock(moves []orders.Movement, threshold int) []orders.Movement {
	var out []orders.Movement
	idx := map[string]int{}
	for _, mv := range moves {
		if mv.Delta >= 0 || mv.StockAfter > threshold {
			continue
		}
		if i, ok := idx[mv.ProductID]; ok {
			out[i] = mv
			continue
		}
		idx[mv.ProductID] = len(out)
		out = append(out, mv)
	}
	return out
}

func (w *Watcher) alert(src orders.Envelope, orderID string, mv orders.Movement) {
	env, err := orders.NewEnvelope(orders.EventStockLow, w.Service, orderID, orders.StockLowPayload{
		ProductID:  mv.ProductID,
		StockAfter: mv.StockAfter,
		Threshold:  w.Threshold,
		OrderID:    orderID,
	})
	if err != nil {
		w.log().Error("encode stock alert", zap.String("product_id", mv.ProductID), zap.Error(err))
		return
	}
	env.TraceID = src.TraceID
	env.RequestID = src.RequestID
	w.Alerts.Publish([]byte(mv.ProductID), kafkax.MustMarshal(env), orders.EventHeaders(orders.EventStockLow)...)
	if w.Counter != nil {
		w.Counter.LowStock(mv.ProductID)
	}
	w.log().Info("low stock",
		zap.String("product_id", mv.ProductID),
		zap.Int("stock_after", mv.StockAfter),
		zap.String("order_id", orderID),
	)
}

func (w *Watcher) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}
