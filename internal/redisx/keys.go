package redisx

import "time"

const (
	// Idempotent create: idem:order:create:{idempotency_key} -> "pending", then order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order snapshot: order:{order_id} -> JSON
	KeyOrder = "order:%s"

	// Product snapshot: product:{product_id} -> JSON
	KeyProduct = "product:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLIdemPending  = time.Minute
	TTLOrderCache   = 30 * time.Second
	TTLProductCache = 30 * time.Second
	TTLDedup        = 48 * time.Hour
)
