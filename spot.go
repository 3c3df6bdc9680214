package spot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goforj/spot/codec"
	"github.com/goforj/spot/serializer"
)

// Config controls how a Spot is constructed.
type Config struct {
	// DefaultVersion is folded into every fingerprint unless a function
	// overrides it with WithVersion.
	DefaultVersion string

	// Store takes precedence over StoreConfig.
	Store       Store
	StoreConfig StoreConfig
	// StoreTimeout bounds each lookup and write. Defaults to 5s.
	StoreTimeout time.Duration

	Serializer serializer.Serializer
	// TTL is passed to the store on writes. Zero defers to the store default.
	TTL time.Duration

	Logger   *zap.Logger
	Observer Observer

	SingleFlight bool
}

func defaultConfig() Config {
	return Config{SingleFlight: true}
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.Serializer == nil {
		c.Serializer = serializer.JSON()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Spot memoizes marked functions in a shared store. Types and functions are
// registered during setup; the first Call or an explicit Freeze ends setup.
type Spot struct {
	namespace string
	cfg       Config
	log       *zap.Logger

	registry *codec.Registry
	store    Store
	ownStore bool

	mu     sync.Mutex
	names  map[string]struct{}
	frozen atomic.Bool

	flights singleflight.Group

	// bgMu orders pending.Add against pending.Wait.
	bgMu    sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

// New returns a Spot for namespace. When no store is supplied one is built
// from StoreConfig; a store that fails to build is logged and every call then
// runs the wrapped function directly.
func New(namespace string, opts ...Option) (*Spot, error) {
	if namespace == "" {
		return nil, ErrEmptyNamespace
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()

	s := &Spot{
		namespace: namespace,
		cfg:       cfg,
		log:       cfg.Logger.With(zap.String("namespace", namespace)),
		registry:  codec.NewRegistry(),
		store:     cfg.Store,
		names:     make(map[string]struct{}),
	}
	if s.store == nil {
		storeCfg := cfg.StoreConfig.withDefaults()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		store, err := NewStore(ctx, storeCfg)
		cancel()
		if err != nil {
			s.log.Warn("store unavailable, calls will not be cached",
				zap.String("driver", string(storeCfg.Driver)), zap.Error(err))
			store = &errorStore{driver: storeCfg.Driver, err: err}
		}
		s.store = store
		s.ownStore = true
	}
	return s, nil
}

// Namespace returns the namespace folded into every fingerprint.
func (s *Spot) Namespace() string { return s.namespace }

// Store returns the underlying store.
func (s *Spot) Store() Store { return s.store }

// Registry returns the codec registry.
func (s *Spot) Registry() *codec.Registry { return s.registry }

// Register binds a result type to a stable code.
//
// Example:
//
//	err := s.Register(10, codec.Struct[UserList]("v1"))
func (s *Spot) Register(code codec.Code, c codec.Codec) error {
	if s.frozen.Load() {
		return registrationError(errors.Wrapf(ErrFrozen, "register code %d", code))
	}
	return s.registry.Register(code, c)
}

// Freeze ends the setup phase. Register and Mark fail afterwards.
func (s *Spot) Freeze() {
	if s.frozen.CompareAndSwap(false, true) {
		s.registry.Freeze()
	}
}

// Frozen reports whether setup has ended.
func (s *Spot) Frozen() bool { return s.frozen.Load() }

// Wait blocks until every background save has finished. Saves started while
// Wait runs are held back until it returns.
func (s *Spot) Wait() {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	s.pending.Wait()
}

// Close drains background saves and releases the store when the Spot built it.
// Calls made after Close save in the foreground.
func (s *Spot) Close() error {
	s.bgMu.Lock()
	s.closed = true
	s.pending.Wait()
	s.bgMu.Unlock()
	if !s.ownStore {
		return nil
	}
	return closeStore(s.store)
}

// background runs fn on its own goroutine and tracks it for Wait. It reports
// false once the Spot is closed, leaving fn to the caller.
func (s *Spot) background(fn func()) bool {
	s.bgMu.RLock()
	defer s.bgMu.RUnlock()
	if s.closed {
		return false
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		fn()
	}()
	return true
}

func (s *Spot) observe(ctx context.Context, ev Event) {
	if s.cfg.Observer == nil {
		return
	}
	ev.Namespace = s.namespace
	ev.Driver = s.store.Driver()
	s.cfg.Observer.OnEvent(ctx, ev)
}

func storeOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
