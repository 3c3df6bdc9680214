package spot

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrUnknownDriver is returned by NewStore for an unrecognised driver name.
var ErrUnknownDriver = errors.New("spot: unknown store driver")

// NewStore returns a store for the requested driver, layered as
// driver -> encryption -> compression/size limit -> in-process hit memo.
// Clients left nil in cfg are built from the matching address fields.
//
// Example: file store with zstd compression
//
//	store, err := spot.NewStore(ctx, spot.StoreConfig{
//		Driver:     spot.DriverFile,
//		FileDir:    ".spot",
//		BaseConfig: cachecore.BaseConfig{Compression: cachecore.CompressionZstd},
//	})
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	cfg = cfg.withDefaults()
	store, err := newDriverStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s store", cfg.Driver)
	}
	store, err = newEncryptingStore(store, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	store = newShapingStore(store, cfg.Compression, cfg.MaxValueBytes)
	if cfg.Memoize {
		store = NewMemoStore(store)
	}
	return store, nil
}

func newDriverStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverNull:
		return newNullStore(), nil
	case DriverMemory:
		return newMemoryStore(cfg.DefaultTTL, cfg.MemoryCleanupInterval), nil
	case DriverFile:
		return newFileStore(cfg.FileDir, cfg.DefaultTTL)
	case DriverRedis:
		client := cfg.RedisClient
		if client == nil {
			if cfg.RedisAddr == "" {
				return nil, errors.New("redis driver requires a client or address")
			}
			client = newRedisClient(cfg)
		}
		return newRedisStore(client, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverMemcached:
		client := cfg.MemcachedClient
		if client == nil {
			client = newMemcachedClient(cfg.MemcachedAddresses)
		}
		return newMemcachedStore(client, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverSQL:
		return newSQLStore(ctx, cfg)
	case DriverDynamo:
		return newDynamoStore(ctx, cfg)
	case DriverNATS:
		kv := cfg.NATSKeyValue
		if kv == nil {
			if cfg.NATSURL == "" {
				return nil, errors.New("nats driver requires a key-value handle or url")
			}
			var err error
			if kv, err = newNATSKeyValue(cfg); err != nil {
				return nil, err
			}
		}
		return newNATSStore(kv, cfg.DefaultTTL, cfg.Prefix, cfg.NATSBucketTTL), nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", cfg.Driver)
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) (Store, error) {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store.
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	store, err := NewStoreWith(ctx, DriverMemory, opts...)
	if err != nil {
		return &errorStore{driver: DriverMemory, err: err}
	}
	return store
}

// NewFileStore is a convenience for a filesystem-backed store.
func NewFileStore(ctx context.Context, dir string, opts ...StoreOption) (Store, error) {
	return NewStoreWith(ctx, DriverFile, append([]StoreOption{WithFileDir(dir)}, opts...)...)
}

// NewRedisStore is a convenience for a redis-backed store.
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) (Store, error) {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// CloseStore releases the connections held by a store built with NewStore.
// Stores without connections are left alone.
func CloseStore(store Store) error { return closeStore(store) }

func closeStore(store Store) error {
	for {
		switch s := store.(type) {
		case interface{ Close() error }:
			return s.Close()
		case *memoStore:
			store = s.store
		case *shapingStore:
			store = s.inner
		case *encryptingStore:
			store = s.inner
		default:
			return nil
		}
	}
}
