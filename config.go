package spot

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goforj/spot/cachecore"
)

const (
	defaultCachePrefix           = "spot"
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultStoreTimeout          = 5 * time.Second
	defaultSQLTable              = "spot_entries"
	defaultDynamoTable           = "spot_entries"
	defaultDynamoRegion          = "us-east-1"
	defaultNATSBucket            = "spot"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "spot-cache")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	cachecore.BaseConfig

	Driver Driver

	// MemoryCleanupInterval controls in-process cache eviction.
	MemoryCleanupInterval time.Duration

	// FileDir controls where file driver stores cache entries.
	FileDir string

	// RedisClient takes precedence over RedisAddr.
	RedisClient   RedisClient
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MemcachedClient takes precedence over MemcachedAddresses.
	MemcachedClient    MemcachedClient
	MemcachedAddresses []string

	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string

	// NATSKeyValue takes precedence over NATSURL and NATSBucket.
	NATSKeyValue NATSKeyValue
	NATSURL      string
	NATSBucket   string
	// NATSBucketTTL delegates expiry to the bucket's MaxAge instead of
	// per-entry expiry envelopes.
	NATSBucketTTL bool

	// Memoize keeps hits in process memory after the first read.
	Memoize bool
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Compression == "" {
		c.Compression = cachecore.CompressionNone
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultCachePrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	if c.NATSBucket == "" {
		c.NATSBucket = defaultNATSBucket
	}
	return c
}
