package spot

import (
	"time"

	"go.uber.org/zap"

	"github.com/goforj/spot/cachecore"
	"github.com/goforj/spot/keygen"
	"github.com/goforj/spot/serializer"
)

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithDefaultTTL overrides the fallback TTL used when ttl <= 0. Zero keeps
// entries until deleted.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithRedisClient sets the redis client used by DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithCompression compresses values before they reach the driver.
func WithCompression(codec cachecore.CompressionCodec) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Compression = codec
		return cfg
	}
}

// WithMaxValueBytes rejects writes whose shaped value exceeds n bytes.
func WithMaxValueBytes(n int) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithEncryptionKey seals values with AES-GCM; key must be 16, 24 or 32 bytes.
func WithEncryptionKey(key []byte) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.EncryptionKey = key
		return cfg
	}
}

// WithMemoize keeps hits in process memory.
func WithMemoize(enabled bool) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Memoize = enabled
		return cfg
	}
}

// Option mutates Config when constructing a Spot.
type Option func(Config) Config

// WithDefaultVersion sets the version used by functions marked without WithVersion.
func WithDefaultVersion(version string) Option {
	return func(cfg Config) Config {
		cfg.DefaultVersion = version
		return cfg
	}
}

// WithStore uses an already constructed store.
func WithStore(store Store) Option {
	return func(cfg Config) Config {
		cfg.Store = store
		return cfg
	}
}

// WithStoreConfig builds the store with NewStore when no store is given.
func WithStoreConfig(storeCfg StoreConfig) Option {
	return func(cfg Config) Config {
		cfg.StoreConfig = storeCfg
		return cfg
	}
}

// WithStoreTimeout bounds every store lookup and write.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(cfg Config) Config {
		cfg.StoreTimeout = timeout
		return cfg
	}
}

// WithSerializer sets the default serializer for marked functions.
func WithSerializer(s serializer.Serializer) Option {
	return func(cfg Config) Config {
		cfg.Serializer = s
		return cfg
	}
}

// WithTTL sets the ttl passed to the store on writes. Zero defers to the store.
func WithTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.TTL = ttl
		return cfg
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg Config) Config {
		cfg.Logger = logger
		return cfg
	}
}

// WithObserver receives an Event after every lookup, compute and write.
func WithObserver(observer Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = observer
		return cfg
	}
}

// WithSingleFlight toggles in-process coalescing of concurrent misses. On by default.
func WithSingleFlight(enabled bool) Option {
	return func(cfg Config) Config {
		cfg.SingleFlight = enabled
		return cfg
	}
}

// MarkOption mutates the per-function settings captured by Mark.
type MarkOption func(MarkConfig) MarkConfig

// MarkConfig holds the settings captured by Mark.
type MarkConfig struct {
	Keys           keygen.Map
	Version        string
	Serializer     serializer.Serializer
	TTL            time.Duration
	Hash           keygen.Algorithm
	BackgroundSave bool

	versionSet bool
}

// WithKeys sets per-parameter key directives.
func WithKeys(m keygen.Map) MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.Keys = m
		return cfg
	}
}

// WithVersion overrides the Spot default version for one function.
func WithVersion(version string) MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.Version = version
		cfg.versionSet = true
		return cfg
	}
}

// WithMarkSerializer overrides the Spot serializer for one function.
func WithMarkSerializer(s serializer.Serializer) MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.Serializer = s
		return cfg
	}
}

// WithMarkTTL overrides the Spot ttl for one function.
func WithMarkTTL(ttl time.Duration) MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.TTL = ttl
		return cfg
	}
}

// WithHash selects the fingerprint algorithm for one function.
func WithHash(algo keygen.Algorithm) MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.Hash = algo
		return cfg
	}
}

// WithBackgroundSave returns results before the store write completes. The
// write is detached from the caller's cancellation; Spot.Wait drains it.
func WithBackgroundSave() MarkOption {
	return func(cfg MarkConfig) MarkConfig {
		cfg.BackgroundSave = true
		return cfg
	}
}
