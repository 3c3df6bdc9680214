package spot

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadStoreConfig(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(testEncryptionKey)
	path := writeConfig(t, `
driver: redis
prefix: llm
default_ttl: 7d
compression: zstd
max_value_bytes: 1048576
encryption_key: `+key+`
memoize: true
memory:
  cleanup_interval: 90s
redis:
  addr: localhost:6379
  db: 2
memcached:
  addresses:
    - a:11211
    - b:11211
sql:
  driver: pgx
  dsn: postgres://localhost/spot
nats:
  url: nats://localhost:4222
  bucket_ttl: true
`)
	cfg, err := LoadStoreConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Driver != DriverRedis || cfg.Prefix != "llm" || cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DefaultTTL != 7*24*time.Hour || cfg.MemoryCleanupInterval != 90*time.Second {
		t.Fatalf("unexpected durations: ttl=%v cleanup=%v", cfg.DefaultTTL, cfg.MemoryCleanupInterval)
	}
	if cfg.Compression != CompressionZstd || cfg.MaxValueBytes != 1<<20 || !cfg.Memoize {
		t.Fatalf("unexpected shaping: %+v", cfg.BaseConfig)
	}
	if string(cfg.EncryptionKey) != string(testEncryptionKey) {
		t.Fatalf("expected decoded encryption key")
	}
	if len(cfg.MemcachedAddresses) != 2 || cfg.SQLDriverName != "pgx" || !cfg.NATSBucketTTL {
		t.Fatalf("unexpected driver sections: %+v", cfg)
	}
}

func TestLoadStoreConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "drvier: redis\n",
		"bad duration":   "default_ttl: soon\n",
		"unknown driver": "driver: tape\n",
		"bad key":        "encryption_key: '%%%'\n",
	}
	for name, body := range cases {
		if _, err := LoadStoreConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadStoreConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestOverlayEnv(t *testing.T) {
	env := map[string]string{
		"APP_DRIVER":              "memcached",
		"APP_DEFAULT_TTL":         "36h",
		"APP_MEMCACHED_ADDRESSES": "a:11211, b:11211,",
		"APP_REDIS_DB":            "3",
		"APP_MEMOIZE":             "true",
		"APP_FILE_DIR":            "  ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	base := StoreConfig{FileDir: "/var/cache/spot"}
	cfg, err := overlayEnv(base, "APP", lookup)
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	if cfg.Driver != DriverMemcached || cfg.DefaultTTL != 36*time.Hour || cfg.RedisDB != 3 || !cfg.Memoize {
		t.Fatalf("unexpected overlay: %+v", cfg)
	}
	if len(cfg.MemcachedAddresses) != 2 || cfg.MemcachedAddresses[1] != "b:11211" {
		t.Fatalf("unexpected addresses %v", cfg.MemcachedAddresses)
	}
	if cfg.FileDir != "/var/cache/spot" {
		t.Fatalf("blank variables must not override, got %q", cfg.FileDir)
	}

	env = map[string]string{"APP_REDIS_DB": "two", "APP_DEFAULT_TTL": "later"}
	_, err = overlayEnv(StoreConfig{}, "APP", lookup)
	if err == nil {
		t.Fatalf("expected parse errors")
	}

	env = map[string]string{"APP_DRIVER": "tape"}
	if _, err := overlayEnv(StoreConfig{}, "APP", lookup); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected unknown driver, got %v", err)
	}
}

func TestStoreConfigFromEnv(t *testing.T) {
	t.Setenv("SPOT_DRIVER", "file")
	t.Setenv("SPOT_FILE_DIR", "/tmp/spot-env")
	cfg, err := StoreConfigFromEnv("")
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Driver != DriverFile || cfg.FileDir != "/tmp/spot-env" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
