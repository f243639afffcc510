package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

const loadTimeout = 5 * time.Second

// Cache is a read-through cache in front of the database. Redis failures
// are logged and fall back to the loader; the database stays the source of
// truth. Entries live briefly: a load racing a commit can still write the
// pre-commit snapshot after invalidation.
type Cache struct {
	rdb   redis.Cmdable
	group singleflight.Group
	log   *zap.Logger
}

func NewCache(rdb redis.Cmdable, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{rdb: rdb, log: log}
}

func (c *Cache) Order(ctx context.Context, id string, load func(context.Context) (orders.Order, error)) (orders.Order, error) {
	return readThrough(ctx, c, fmt.Sprintf(KeyOrder, id), TTLOrderCache, load)
}

func (c *Cache) Product(ctx context.Context, id string, load func(context.Context) (orders.Product, error)) (orders.Product, error) {
	return readThrough(ctx, c, fmt.Sprintf(KeyProduct, id), TTLProductCache, load)
}

func (c *Cache) InvalidateOrder(ctx context.Context, id string) {
	c.del(ctx, fmt.Sprintf(KeyOrder, id))
}

func (c *Cache) InvalidateProducts(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(KeyProduct, id))
	}
	c.del(ctx, keys...)
}

// OrderChanged drops the cached order and every product whose stock moved.
func (c *Cache) OrderChanged(ctx context.Context, ch orders.Change) {
	c.InvalidateOrder(ctx, ch.Order.ID)
	ids := make([]string, 0, len(ch.Movements))
	for _, mv := range ch.Movements {
		ids = append(ids, mv.ProductID)
	}
	c.InvalidateProducts(ctx, ids...)
}

type ClaimState int

const (
	ClaimUnavailable ClaimState = iota // redis down; proceed without idempotency
	ClaimAcquired                      // caller owns the key and must Complete or Abandon it
	ClaimInFlight                      // another request holds the key
	ClaimDone                          // an order was already created for the key
)

const idemPending = "pending"

// ClaimOrderKey takes an idempotency key with SETNX so only one request can
// create an order for it. For ClaimDone the stored order ID is returned.
func (c *Cache) ClaimOrderKey(ctx context.Context, key string) (ClaimState, string) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := c.rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
	if err != nil {
		c.log.Warn("idempotency claim failed", zap.Error(err))
		return ClaimUnavailable, ""
	}
	if ok {
		return ClaimAcquired, ""
	}
	v, err := c.rdb.Get(ctx, k).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("idempotency lookup failed", zap.Error(err))
		}
		// the claim expired between SETNX and GET
		return ClaimUnavailable, ""
	}
	if v == idemPending {
		return ClaimInFlight, ""
	}
	return ClaimDone, v
}

// CompleteOrderKey replaces the claim with the created order ID.
func (c *Cache) CompleteOrderKey(ctx context.Context, key, orderID string) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err(); err != nil {
		c.log.Warn("idempotency store failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// AbandonOrderKey drops a claim whose create failed so the client may retry.
func (c *Cache) AbandonOrderKey(ctx context.Context, key string) {
	c.del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key))
}

func (c *Cache) del(ctx context.Context, keys ...string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func readThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if s, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	// Concurrent misses for one key share a single load. The load runs
	// detached from any one caller so a cancelled request does not fail the
	// others waiting on it.
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(v); err == nil {
			if err := c.rdb.Set(lctx, key, string(b), ttl).Err(); err != nil {
				c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
