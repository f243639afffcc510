package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderUpdated = "OrderUpdated"
	EventOrderDeleted = "OrderDeleted"
	EventStockLow     = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`       // OTel trace of the originating operation
	RequestID     string          `json:"request_id,omitempty"`     // HTTP X-Request-Id
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderChangedPayload struct {
	OrderID    string      `json:"order_id"`
	Customer   string      `json:"customer"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	Movements  []Movement  `json:"movements"`
}

type StockLowPayload struct {
	ProductID  string `json:"product_id"`
	StockAfter int    `json:"stock_after"`
	Threshold  int    `json:"threshold"`
	OrderID    string `json:"order_id,omitempty"`
}

// NewEnvelope wraps payload as a version-1 event.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Publisher matches kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// EventNotifier publishes committed changes, one producer per topic.
type EventNotifier struct {
	Created Publisher
	Updated Publisher
	Deleted Publisher
	Service string
	Log     *zap.Logger
}

func (n *EventNotifier) OrderChanged(ctx context.Context, c Change) {
	var (
		eventType string
		pub       Publisher
	)
	switch c.Kind {
	case ChangeCreated:
		eventType, pub = EventOrderCreated, n.Created
	case ChangeUpdated:
		eventType, pub = EventOrderUpdated, n.Updated
	case ChangeDeleted:
		eventType, pub = EventOrderDeleted, n.Deleted
	}
	if pub == nil {
		return
	}
	env, err := NewEnvelope(eventType, n.Service, c.Order.ID, OrderChangedPayload{
		OrderID:    c.Order.ID,
		Customer:   c.Order.Customer,
		Items:      c.Order.Items,
		TotalCents: c.Order.TotalCents,
		Movements:  c.Movements,
	})
	if err == nil {
		env.RequestID = RequestIDFrom(ctx)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			env.TraceID = sc.TraceID().String()
		}
		var b []byte
		if b, err = json.Marshal(env); err == nil {
			pub.Publish(PartitionKey(c.Order.ID), b, EventHeaders(eventType)...)
			return
		}
	}
	if n.Log != nil {
		n.Log.Error("encode order event", zap.String("order_id", c.Order.ID), zap.Error(err))
	}
}

func EventHeaders(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

type requestIDKey struct{}

// WithRequestID stores the HTTP request ID so events can carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}
