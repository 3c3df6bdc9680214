package spot

import (
	"context"
	"sync"
	"time"
)

// NewMemoStore decorates store with per-process read memoization.
// Only hits are remembered: a miss always reaches the backing store so writes
// from other processes become visible. Entries are append-only, so a
// remembered hit stays valid until it is deleted or flushed through this store.
func NewMemoStore(store Store) Store {
	return &memoStore{
		store: store,
		items: make(map[string][]byte),
	}
}

type memoStore struct {
	store Store
	mu    sync.RWMutex
	items map[string][]byte
}

func (s *memoStore) Driver() Driver {
	return s.store.Driver()
}

func (s *memoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	body, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return cloneBytes(body), true, nil
	}

	body, exists, err := s.store.Get(ctx, key)
	if err != nil || !exists {
		return nil, false, err
	}

	s.mu.Lock()
	s.items[key] = cloneBytes(body)
	s.mu.Unlock()

	return body, true, nil
}

func (s *memoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.forget(key)
	return nil
}

func (s *memoStore) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.forget(key)
	return nil
}

func (s *memoStore) DeleteMany(ctx context.Context, keys ...string) error {
	if err := s.store.DeleteMany(ctx, keys...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, key := range keys {
		delete(s.items, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *memoStore) Flush(ctx context.Context) error {
	if err := s.store.Flush(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.items = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

func (s *memoStore) forget(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}
