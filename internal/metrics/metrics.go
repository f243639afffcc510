package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

const namespace = "stockorders"

type Metrics struct {
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	OrderOps      *prometheus.CounterVec
	StockUnits    *prometheus.CounterVec
	LowStockAlert *prometheus.CounterVec

	reg *prometheus.Registry
}

// New registers every collector on a fresh registry, so several instances
// can live in one process (tests, two binaries sharing code).
func New(service string) *Metrics {
	// metric names allow no dashes
	service = strings.ReplaceAll(service, "-", "_")
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		OrderOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "order_operations_total",
			Help:      "Order operations by outcome.",
		}, []string{"op", "result"}),
		StockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "stock_units_total",
			Help:      "Stock units reserved and released by committed orders.",
		}, []string{"direction"}),
		LowStockAlert: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "low_stock_alerts_total",
			Help:      "Low-stock alerts raised per product.",
		}, []string{"product_id"}),
		reg: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.OrderOps, m.StockUnits, m.LowStockAlert,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderOp(op, result string) {
	m.OrderOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) StockMoved(moves []orders.Movement) {
	for _, mv := range moves {
		switch {
		case mv.Delta < 0:
			m.StockUnits.WithLabelValues("reserved").Add(float64(-mv.Delta))
		case mv.Delta > 0:
			m.StockUnits.WithLabelValues("released").Add(float64(mv.Delta))
		}
	}
}

func (m *Metrics) LowStock(productID string) {
	m.LowStockAlert.WithLabelValues(productID).Inc()
}

// Middleware counts requests per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
