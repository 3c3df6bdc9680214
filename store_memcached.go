package spot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"
)

// MemcachedClient captures the subset of memcache.Client used by the store.
type MemcachedClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	DeleteAll() error
}

const (
	memcachedMaxKeyLen = 250
	// Expirations above 30 days are read by memcached as absolute unix times.
	memcachedRelativeLimit = 30 * 24 * time.Hour
)

var errMemcachedUnavailable = errors.New("memcached client unavailable")

type memcachedStore struct {
	client     MemcachedClient
	defaultTTL time.Duration
	prefix     string
}

func newMemcachedStore(client MemcachedClient, defaultTTL time.Duration, prefix string) Store {
	if client == nil {
		return &errorStore{driver: DriverMemcached, err: errMemcachedUnavailable}
	}
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return &memcachedStore{client: client, defaultTTL: defaultTTL, prefix: prefix}
}

func newMemcachedClient(addrs []string) MemcachedClient {
	if len(addrs) == 0 {
		addrs = []string{"127.0.0.1:11211"}
	}
	return memcache.New(addrs...)
}

func (s *memcachedStore) Driver() Driver { return DriverMemcached }

func (s *memcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := s.client.Get(s.cacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cloneBytes(item.Value), true, nil
}

func (s *memcachedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(&memcache.Item{
		Key:        s.cacheKey(key),
		Value:      cloneBytes(value),
		Expiration: memcachedExpiration(ttl, time.Now()),
	})
}

func (s *memcachedStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Delete(s.cacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *memcachedStore) DeleteMany(ctx context.Context, keys ...string) error {
	return deleteEach(ctx, keys, s.Delete)
}

// Flush clears the whole server: memcached cannot enumerate keys by prefix.
func (s *memcachedStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.DeleteAll()
}

// cacheKey hashes keys that would exceed memcached's key length limit or
// contain bytes the text protocol rejects.
func (s *memcachedStore) cacheKey(key string) string {
	full := s.prefix + ":" + key
	if len(full) <= memcachedMaxKeyLen && legalMemcachedKey(full) {
		return full
	}
	sum := sha256.Sum256([]byte(key))
	return s.prefix + ":h:" + hex.EncodeToString(sum[:])
}

func legalMemcachedKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

func memcachedExpiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > memcachedRelativeLimit {
		return int32(now.Add(ttl).Unix())
	}
	secs := int32(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}
