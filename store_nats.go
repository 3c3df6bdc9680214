package spot

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
)

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

var (
	errNATSUnavailable  = errors.New("nats cache key-value unavailable")
	errCorruptNATSEntry = errors.New("nats store: corrupt entry")
	natsEntryMagic      = []byte("SNK1")
)

const natsEntryHeaderLen = 12

// natsStore stores values under "p.<prefix>.k.<key>" with base64url encoded
// parts. Unless the bucket enforces MaxAge itself, every value is prefixed
// with magic and a big-endian expiry in unix millis (zero never expires).
type natsStore struct {
	kv         NATSKeyValue
	defaultTTL time.Duration
	prefix     string
	bucketTTL  bool
}

func newNATSStore(kv NATSKeyValue, defaultTTL time.Duration, prefix string, bucketTTL bool) Store {
	if kv == nil {
		return &errorStore{driver: DriverNATS, err: errNATSUnavailable}
	}
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return &natsStore{
		kv:         kv,
		defaultTTL: defaultTTL,
		prefix:     prefix,
		bucketTTL:  bucketTTL,
	}
}

// newNATSKeyValue connects to url and binds the bucket, creating it when missing.
func newNATSKeyValue(cfg StoreConfig) (NATSKeyValue, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", cfg.NATSURL)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "jetstream context")
	}
	kv, err := js.KeyValue(cfg.NATSBucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		bucket := &nats.KeyValueConfig{Bucket: cfg.NATSBucket}
		if cfg.NATSBucketTTL {
			bucket.TTL = cfg.DefaultTTL
		}
		kv, err = js.CreateKeyValue(bucket)
	}
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "bind bucket %s", cfg.NATSBucket)
	}
	return kv, nil
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	cacheKey := s.cacheKey(key)
	entry, err := s.kv.Get(cacheKey)
	if isNATSMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, false, nil
	}
	if s.bucketTTL {
		return cloneBytes(entry.Value()), true, nil
	}
	expiresAt, value, err := decodeNATSEntry(entry.Value())
	if err != nil {
		return nil, false, err
	}
	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		_ = s.kv.Purge(cacheKey)
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (s *natsStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	body := cloneBytes(value)
	if !s.bucketTTL {
		body = s.encodeNATSEntry(value, ttl)
	}
	_, err := s.kv.Put(s.cacheKey(key), body)
	return err
}

func (s *natsStore) Delete(_ context.Context, key string) error {
	err := s.kv.Purge(s.cacheKey(key))
	if isNATSMiss(err) {
		return nil
	}
	return err
}

func (s *natsStore) DeleteMany(ctx context.Context, keys ...string) error {
	return deleteEach(ctx, keys, s.Delete)
}

func (s *natsStore) Flush(ctx context.Context) error {
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes(), nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scopePrefix := s.scopePrefix()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scopePrefix) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	return ctx.Err()
}

func (s *natsStore) cacheKey(key string) string {
	return s.scopePrefix() + encodeNATSKeyPart(key)
}

func (s *natsStore) scopePrefix() string {
	return "p." + encodeNATSKeyPart(s.prefix) + ".k."
}

func (s *natsStore) encodeNATSEntry(value []byte, ttl time.Duration) []byte {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	out := make([]byte, natsEntryHeaderLen, natsEntryHeaderLen+len(value))
	copy(out, natsEntryMagic)
	binary.BigEndian.PutUint64(out[4:], uint64(expiresAt))
	return append(out, value...)
}

func decodeNATSEntry(body []byte) (int64, []byte, error) {
	if len(body) < natsEntryHeaderLen || string(body[:4]) != string(natsEntryMagic) {
		return 0, nil, errCorruptNATSEntry
	}
	return int64(binary.BigEndian.Uint64(body[4:natsEntryHeaderLen])), body[natsEntryHeaderLen:], nil
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
