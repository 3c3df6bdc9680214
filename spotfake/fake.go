package spotfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/spot"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpDelete     Op = "delete"
	OpDeleteMany Op = "delete_many"
	OpFlush      Op = "flush"
)

// Fake is an in-memory spot.Store that records every call and can be told to
// fail or stall, so tests can check memoization without external services.
type Fake struct {
	inner spot.Store

	mu     sync.Mutex
	counts map[Op]map[string]int
	fail   map[Op]error
	delay  map[Op]time.Duration
}

var _ spot.Store = (*Fake)(nil)

// New creates a Fake backed by the memory store.
func New() *Fake {
	return &Fake{
		inner:  spot.NewMemoryStore(context.Background()),
		counts: make(map[Op]map[string]int),
		fail:   make(map[Op]error),
		delay:  make(map[Op]time.Duration),
	}
}

// Fail makes every later op return err. A nil err clears the failure.
func (f *Fake) Fail(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Stall makes every later op sleep for d before running. The sleep ignores
// context cancellation, like a misbehaving driver would.
func (f *Fake) Stall(op Op, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		delete(f.delay, op)
		return
	}
	f.delay[op] = d
}

// Reset clears recorded counts, failures and stalls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
	f.fail = make(map[Op]error)
	f.delay = make(map[Op]time.Duration)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

// Keys returns the keys op was called with, in no particular order.
func (f *Fake) Keys(op Op) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.counts[op]))
	for k := range f.counts[op] {
		keys = append(keys, k)
	}
	return keys
}

func (f *Fake) Driver() spot.Driver { return f.inner.Driver() }

func (f *Fake) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.enter(OpGet, key); err != nil {
		return nil, false, err
	}
	return f.inner.Get(ctx, key)
}

func (f *Fake) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := f.enter(OpSet, key); err != nil {
		return err
	}
	return f.inner.Set(ctx, key, val, ttl)
}

func (f *Fake) Delete(ctx context.Context, key string) error {
	if err := f.enter(OpDelete, key); err != nil {
		return err
	}
	return f.inner.Delete(ctx, key)
}

func (f *Fake) DeleteMany(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := f.enter(OpDeleteMany, k); err != nil {
			return err
		}
	}
	return f.inner.DeleteMany(ctx, keys...)
}

func (f *Fake) Flush(ctx context.Context) error {
	if err := f.enter(OpFlush, ""); err != nil {
		return err
	}
	return f.inner.Flush(ctx)
}

func (f *Fake) enter(op Op, key string) error {
	f.mu.Lock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
	err := f.fail[op]
	d := f.delay[op]
	f.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
	return err
}
