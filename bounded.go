package spot

import (
	"context"
	"time"
)

// bounded runs fn on its own goroutine and gives up after timeout, even when
// the store ignores context cancellation. An abandoned call finishes in the
// background and its result is discarded.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		ch <- result{val: val, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type getResult struct {
	body []byte
	ok   bool
}

func (s *Spot) storeGet(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (getResult, error) {
		body, ok, err := s.store.Get(ctx, key)
		return getResult{body: body, ok: ok}, err
	})
	return r.body, r.ok, err
}

func (s *Spot) storeSet(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Set(ctx, key, value, ttl)
	})
	return err
}

func (s *Spot) storeDelete(ctx context.Context, key string) error {
	_, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Delete(ctx, key)
	})
	return err
}
