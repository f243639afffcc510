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
	"github.com/ariefcatur/go-stock-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-stock-orders/internal/kafka"
	"github.com/ariefcatur/go-stock-orders/internal/logging"
	"github.com/ariefcatur/go-stock-orders/internal/metrics"
	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-inventory"

	logger, err := logging.New(service, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}
	if err := run(cfg, service, logger); err != nil {
		logger.Fatal("inventory watcher stopped", zap.Error(err))
	}
}

func run(cfg config.Config, service string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	alerts := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockLow, 1024, logger)
	alerts.Start(ctx)
	defer func() {
		alerts.Close()
		alerts.WaitClosed()
	}()

	m := metrics.New(service)
	w := &inventory.Watcher{
		Redis:     rdb,
		Cache:     redisx.NewCache(rdb, logger),
		Alerts:    alerts,
		Counter:   m,
		Threshold: cfg.LowStockThreshold,
		Service:   service,
		Log:       logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.OrderTopics, cfg.InventoryWorkers, logger)

	// metrics only; the watcher has no API
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inventory consumer started",
			zap.String("group", cfg.InventoryGroup),
			zap.Strings("topics", orders.OrderTopics),
			zap.Int("workers", cfg.InventoryWorkers),
			zap.Int("low_stock_threshold", cfg.LowStockThreshold),
		)
		return cons.Start(gctx, w.HandleOrderEvent)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
