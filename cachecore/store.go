package cachecore

import (
	"context"
	"time"
)

// Store is the byte-blob persistence contract the memoization layer reads and
// writes through. Keys are opaque strings; values are never interpreted.
//
// A ttl <= 0 passed to Set means "use the store default". A store default of
// zero keeps entries until they are deleted.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}
