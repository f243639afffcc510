package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-stock-orders/internal/config"
	"github.com/ariefcatur/go-stock-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-stock-orders/internal/kafka"
	"github.com/ariefcatur/go-stock-orders/internal/logging"
	"github.com/ariefcatur/go-stock-orders/internal/memstore"
	"github.com/ariefcatur/go-stock-orders/internal/metrics"
	"github.com/ariefcatur/go-stock-orders/internal/observability"
	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/postgres"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("order api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Store
	var runner orders.TxRunner
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		runner = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		runner = &postgres.Runner{DB: db}
	}

	m := metrics.New(cfg.ServiceName)
	notifiers := orders.Notifiers{}

	// Redis: optional, the API keeps serving without it
	var cache *redisx.Cache
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("redis unavailable, cache and idempotency disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		cache = redisx.NewCache(rdb, logger)
		notifiers = append(notifiers, cache)
	}
	cancel()

	// Kafka producers, one per order topic
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		newProducer := func(topic string) *kafkax.Producer {
			p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024, logger)
			p.Start(ctx)
			producers = append(producers, p)
			return p
		}
		notifiers = append(notifiers, &orders.EventNotifier{
			Created: newProducer(orders.TopicOrderCreated),
			Updated: newProducer(orders.TopicOrderUpdated),
			Deleted: newProducer(orders.TopicOrderDeleted),
			Service: cfg.ServiceName,
			Log:     logger,
		})
	} else {
		logger.Info("KAFKA_BROKERS not set, order events disabled")
	}
	defer func() {
		for _, p := range producers {
			p.Close() // flush what is queued
		}
		for _, p := range producers {
			p.WaitClosed()
		}
	}()

	mgr := orders.NewManager(runner,
		orders.WithNotifier(notifiers),
		orders.WithRecorder(m),
		orders.WithLogger(logger),
	)
	catalog := orders.NewCatalog(runner, logger)

	router := httpx.NewRouter(logger, m)
	(&httpx.ProductsHandler{Catalog: catalog, Cache: cache, Log: logger}).Register(router)
	(&httpx.OrdersHandler{Orders: mgr, Cache: cache, Log: logger}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
