package spot

import (
	"encoding/base64"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/goforj/spot/cachecore"
)

// DefaultEnvPrefix prefixes the variables read by StoreConfigFromEnv.
const DefaultEnvPrefix = "SPOT"

// duration accepts the time.ParseDuration syntax plus days and weeks ("7d", "2w").
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return v, nil
}

// fileConfig mirrors StoreConfig in YAML. Clients cannot be configured from a
// file; only their addresses.
type fileConfig struct {
	Driver        string   `yaml:"driver"`
	Prefix        string   `yaml:"prefix"`
	DefaultTTL    duration `yaml:"default_ttl"`
	Compression   string   `yaml:"compression"`
	MaxValueBytes int      `yaml:"max_value_bytes"`
	// EncryptionKey is base64 encoded.
	EncryptionKey string `yaml:"encryption_key"`
	Memoize       bool   `yaml:"memoize"`

	Memory struct {
		CleanupInterval duration `yaml:"cleanup_interval"`
	} `yaml:"memory"`
	File struct {
		Dir string `yaml:"dir"`
	} `yaml:"file"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Memcached struct {
		Addresses []string `yaml:"addresses"`
	} `yaml:"memcached"`
	SQL struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Table  string `yaml:"table"`
	} `yaml:"sql"`
	Dynamo struct {
		Endpoint string `yaml:"endpoint"`
		Region   string `yaml:"region"`
		Table    string `yaml:"table"`
	} `yaml:"dynamodb"`
	NATS struct {
		URL       string `yaml:"url"`
		Bucket    string `yaml:"bucket"`
		BucketTTL bool   `yaml:"bucket_ttl"`
	} `yaml:"nats"`
}

// LoadStoreConfig reads a YAML store configuration from path.
//
// Example:
//
//	driver: redis
//	default_ttl: 7d
//	compression: zstd
//	redis:
//	  addr: localhost:6379
func LoadStoreConfig(path string) (StoreConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return StoreConfig{}, errors.Wrapf(err, "open store config %s", path)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return StoreConfig{}, errors.Wrapf(err, "decode store config %s", path)
	}
	return fc.storeConfig()
}

func (fc fileConfig) storeConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		BaseConfig: cachecore.BaseConfig{
			DefaultTTL:    time.Duration(fc.DefaultTTL),
			Prefix:        fc.Prefix,
			Compression:   cachecore.CompressionCodec(fc.Compression),
			MaxValueBytes: fc.MaxValueBytes,
		},
		Driver:                Driver(fc.Driver),
		MemoryCleanupInterval: time.Duration(fc.Memory.CleanupInterval),
		FileDir:               fc.File.Dir,
		RedisAddr:             fc.Redis.Addr,
		RedisPassword:         fc.Redis.Password,
		RedisDB:               fc.Redis.DB,
		MemcachedAddresses:    fc.Memcached.Addresses,
		SQLDriverName:         fc.SQL.Driver,
		SQLDSN:                fc.SQL.DSN,
		SQLTable:              fc.SQL.Table,
		DynamoEndpoint:        fc.Dynamo.Endpoint,
		DynamoRegion:          fc.Dynamo.Region,
		DynamoTable:           fc.Dynamo.Table,
		NATSURL:               fc.NATS.URL,
		NATSBucket:            fc.NATS.Bucket,
		NATSBucketTTL:         fc.NATS.BucketTTL,
		Memoize:               fc.Memoize,
	}
	if fc.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(fc.EncryptionKey)
		if err != nil {
			return StoreConfig{}, errors.Wrap(err, "decode encryption_key")
		}
		cfg.EncryptionKey = key
	}
	if cfg.Driver != "" && !cfg.Driver.Valid() {
		return StoreConfig{}, errors.Wrapf(ErrUnknownDriver, "%q", cfg.Driver)
	}
	return cfg, nil
}

// StoreConfigFromEnv builds a StoreConfig from environment variables named
// <prefix>_DRIVER, <prefix>_DEFAULT_TTL and so on. An empty prefix uses SPOT.
func StoreConfigFromEnv(prefix string) (StoreConfig, error) {
	return OverlayEnv(StoreConfig{}, prefix)
}

// OverlayEnv returns cfg with every variable that is set in the environment
// applied on top.
func OverlayEnv(cfg StoreConfig, prefix string) (StoreConfig, error) {
	return overlayEnv(cfg, prefix, os.LookupEnv)
}

func overlayEnv(cfg StoreConfig, prefix string, lookup func(string) (string, bool)) (StoreConfig, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	var errs error
	get := func(name string) (string, bool) {
		v, ok := lookup(prefix + "_" + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s_%s", prefix, name))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s_%s", prefix, name))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s_%s", prefix, name))
				return
			}
			*dst = b
		}
	}

	if v, ok := get("DRIVER"); ok {
		cfg.Driver = Driver(v)
	}
	str("PREFIX", &cfg.Prefix)
	dur("DEFAULT_TTL", &cfg.DefaultTTL)
	if v, ok := get("COMPRESSION"); ok {
		cfg.Compression = cachecore.CompressionCodec(v)
	}
	num("MAX_VALUE_BYTES", &cfg.MaxValueBytes)
	if v, ok := get("ENCRYPTION_KEY"); ok {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s_ENCRYPTION_KEY", prefix))
		} else {
			cfg.EncryptionKey = key
		}
	}
	flag("MEMOIZE", &cfg.Memoize)
	dur("MEMORY_CLEANUP_INTERVAL", &cfg.MemoryCleanupInterval)
	str("FILE_DIR", &cfg.FileDir)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	num("REDIS_DB", &cfg.RedisDB)
	if v, ok := get("MEMCACHED_ADDRESSES"); ok {
		cfg.MemcachedAddresses = splitList(v)
	}
	str("SQL_DRIVER", &cfg.SQLDriverName)
	str("SQL_DSN", &cfg.SQLDSN)
	str("SQL_TABLE", &cfg.SQLTable)
	str("DYNAMO_ENDPOINT", &cfg.DynamoEndpoint)
	str("DYNAMO_REGION", &cfg.DynamoRegion)
	str("DYNAMO_TABLE", &cfg.DynamoTable)
	str("NATS_URL", &cfg.NATSURL)
	str("NATS_BUCKET", &cfg.NATSBucket)
	flag("NATS_BUCKET_TTL", &cfg.NATSBucketTTL)

	if errs != nil {
		return StoreConfig{}, errs
	}
	if cfg.Driver != "" && !cfg.Driver.Valid() {
		return StoreConfig{}, errors.Wrapf(ErrUnknownDriver, "%q", cfg.Driver)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
