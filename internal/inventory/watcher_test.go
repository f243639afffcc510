package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-stock-orders/internal/kafka"
	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

type sent struct {
	key   []byte
	value []byte
}

type fakeAlerts struct{ msgs []sent }

func (f *fakeAlerts) Publish(key, value []byte, _ ...kafkago.Header) {
	f.msgs = append(f.msgs, sent{key: key, value: value})
}

type counter map[string]int

func (c counter) LowStock(id string) { c[id]++ }

func orderEvent(t *testing.T, eventType string, moves ...orders.Movement) (orders.Envelope, kafkago.Message) {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "order-api", "o1", orders.OrderChangedPayload{OrderID: "o1", Movements: moves})
	require.NoError(t, err)
	env.TraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	env.RequestID = "req-1"
	return env, kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestLowStockSelection(t *testing.T) {
	got := LowStock([]orders.Movement{
		{ProductID: "a", Delta: -2, StockAfter: 8},
		{ProductID: "b", Delta: -1, StockAfter: 5},
		{ProductID: "c", Delta: 3, StockAfter: 1},
		{ProductID: "b", Delta: -1, StockAfter: 4},
		{ProductID: "d", Delta: -4, StockAfter: 0},
	}, 5)
	assert.Equal(t, []orders.Movement{
		{ProductID: "b", Delta: -1, StockAfter: 4},
		{ProductID: "d", Delta: -4, StockAfter: 0},
	}, got)
}

func TestHandleOrderEventRaisesAlert(t *testing.T) {
	db, mock := redismock.NewClientMock()
	alerts, cnt := &fakeAlerts{}, counter{}
	w := &Watcher{Redis: db, Alerts: alerts, Counter: cnt, Threshold: 3, Service: "inventory"}

	env, msg := orderEvent(t, orders.EventOrderCreated,
		orders.Movement{ProductID: "p1", Delta: -2, StockAfter: 10},
		orders.Movement{ProductID: "p2", Delta: -4, StockAfter: 1},
	)
	mock.ExpectSetNX("dedup:inventory:"+env.EventID, "1", redisx.TTLDedup).SetVal(true)

	require.NoError(t, w.HandleOrderEvent(context.Background(), msg))
	require.Len(t, alerts.msgs, 1)
	assert.Equal(t, []byte("p2"), alerts.msgs[0].key)
	assert.Equal(t, 1, cnt["p2"])

	var out orders.Envelope
	require.NoError(t, json.Unmarshal(alerts.msgs[0].value, &out))
	assert.Equal(t, orders.EventStockLow, out.EventType)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out.TraceID)
	assert.Equal(t, "req-1", out.RequestID)
	p, err := kafkax.UnwrapPayload[orders.StockLowPayload](out.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StockLowPayload{ProductID: "p2", StockAfter: 1, Threshold: 3, OrderID: "o1"}, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventSkipsDuplicates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	alerts := &fakeAlerts{}
	w := &Watcher{Redis: db, Alerts: alerts, Threshold: 3}

	env, msg := orderEvent(t, orders.EventOrderUpdated, orders.Movement{ProductID: "p1", Delta: -1, StockAfter: 0})
	mock.ExpectSetNX("dedup:inventory:"+env.EventID, "1", redisx.TTLDedup).SetVal(false)

	require.NoError(t, w.HandleOrderEvent(context.Background(), msg))
	assert.Empty(t, alerts.msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventProceedsWhenRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	alerts := &fakeAlerts{}
	w := &Watcher{Redis: db, Alerts: alerts, Threshold: 3}

	env, msg := orderEvent(t, orders.EventOrderCreated, orders.Movement{ProductID: "p1", Delta: -1, StockAfter: 2})
	mock.ExpectSetNX("dedup:inventory:"+env.EventID, "1", redisx.TTLDedup).SetErr(errors.New("connection refused"))

	require.NoError(t, w.HandleOrderEvent(context.Background(), msg))
	assert.Len(t, alerts.msgs, 1)
}

func TestHandleOrderEventInvalidatesMovedProducts(t *testing.T) {
	db, mock := redismock.NewClientMock()
	alerts := &fakeAlerts{}
	w := &Watcher{Redis: db, Cache: redisx.NewCache(db, nil), Alerts: alerts, Threshold: 0}

	env, msg := orderEvent(t, orders.EventOrderDeleted,
		orders.Movement{ProductID: "p1", Delta: 2, StockAfter: 2},
		orders.Movement{ProductID: "p2", Delta: 1, StockAfter: 9},
	)
	mock.ExpectSetNX("dedup:inventory:"+env.EventID, "1", redisx.TTLDedup).SetVal(true)
	mock.ExpectDel("product:p1", "product:p2").SetVal(2)

	require.NoError(t, w.HandleOrderEvent(context.Background(), msg))
	assert.Empty(t, alerts.msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventIgnoresForeignAndRejectsGarbage(t *testing.T) {
	w := &Watcher{Alerts: &fakeAlerts{}}

	_, msg := orderEvent(t, orders.EventStockLow)
	assert.NoError(t, w.HandleOrderEvent(context.Background(), msg))
	assert.Error(t, w.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("{")}))
}

func TestHandleOrderEventBadPayloadIsNotMarkedSeen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	alerts := &fakeAlerts{}
	w := &Watcher{Redis: db, Alerts: alerts, Threshold: 3}

	env, err := orders.NewEnvelope(orders.EventOrderCreated, "order-api", "o1", "not an order")
	require.NoError(t, err)
	msg := kafkago.Message{Value: kafkax.MustMarshal(env)}

	// no Redis: touching the dedup store here would panic
	bare := &Watcher{Alerts: alerts, Threshold: 3}
	assert.NotPanics(t, func() {
		assert.Error(t, bare.HandleOrderEvent(context.Background(), msg))
	})

	// redelivery with a usable payload is still processed
	env.Payload = kafkax.MustMarshal(orders.OrderChangedPayload{
		OrderID:   "o1",
		Movements: []orders.Movement{{ProductID: "p1", Delta: -1, StockAfter: 1}},
	})
	mock.ExpectSetNX("dedup:inventory:"+env.EventID, "1", redisx.TTLDedup).SetVal(true)
	require.NoError(t, w.HandleOrderEvent(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)}))
	assert.Len(t, alerts.msgs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
