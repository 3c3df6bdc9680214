package spot

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/goforj/spot/codec"
	"github.com/goforj/spot/keygen"
	"github.com/goforj/spot/serializer"
)

// Func is a memoized function returned by Mark. It is safe for concurrent use.
type Func[A, R any] struct {
	spot    *Spot
	name    string
	fn      func(context.Context, A) (R, error)
	gen     *keygen.Generator
	id      keygen.Identity
	ser     serializer.Serializer
	ttl     time.Duration
	bgSave  bool
	dynamic bool // R is an interface; the entry code decides the concrete type
	log     *zap.Logger
}

// Mark wraps fn so calls with equal fingerprints are served from the store.
// R must be registered unless it is an interface type.
//
// Example:
//
//	users, err := spot.Mark(s, "get_test_users", getTestUsers,
//		spot.WithKeys(keygen.Map{"client": keygen.Ignore}))
func Mark[A, R any](s *Spot, name string, fn func(context.Context, A) (R, error), opts ...MarkOption) (*Func[A, R], error) {
	if s.frozen.Load() {
		return nil, registrationError(errors.Wrapf(ErrFrozen, "mark %q", name))
	}
	if name == "" {
		return nil, registrationError(ErrEmptyName)
	}
	if fn == nil {
		return nil, registrationError(errors.Wrapf(ErrNilFunc, "mark %q", name))
	}

	cfg := MarkConfig{
		Serializer: s.cfg.Serializer,
		TTL:        s.cfg.TTL,
	}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	if !cfg.versionSet {
		cfg.Version = s.cfg.DefaultVersion
	}
	if cfg.Serializer == nil {
		cfg.Serializer = s.cfg.Serializer
	}

	f := &Func[A, R]{
		spot:   s,
		name:   name,
		fn:     fn,
		ser:    cfg.Serializer,
		ttl:    cfg.TTL,
		bgSave: cfg.BackgroundSave,
		id: keygen.Identity{
			Namespace: s.namespace,
			Name:      name,
			Version:   cfg.Version,
		},
		log: s.log.With(zap.String("func", name)),
	}

	resultType := reflect.TypeOf((*R)(nil)).Elem()
	if resultType.Kind() == reflect.Interface {
		f.dynamic = true
	} else {
		reg, ok := s.registry.LookupType(resultType)
		if !ok {
			return nil, registrationError(errors.Wrapf(ErrUnregisteredType, "mark %q: result %s", name, resultType))
		}
		f.id.ResultCode = uint32(reg.Code)
		f.id.ResultVersion = reg.Version
	}

	argType := reflect.TypeOf((*A)(nil)).Elem()
	gen, err := keygen.New(argType, cfg.Keys, keygen.WithAlgorithm(cfg.Hash))
	if err != nil {
		return nil, registrationError(errors.Wrapf(err, "mark %q", name))
	}
	f.gen = gen

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen.Load() {
		return nil, registrationError(errors.Wrapf(ErrFrozen, "mark %q", name))
	}
	if _, dup := s.names[name]; dup {
		return nil, registrationError(errors.Wrapf(ErrDuplicateName, "%q", name))
	}
	s.names[name] = struct{}{}
	return f, nil
}

// Name returns the name the function was marked with.
func (f *Func[A, R]) Name() string { return f.name }

// Fingerprint returns the cache key args would resolve to.
func (f *Func[A, R]) Fingerprint(args A) (keygen.Fingerprint, error) {
	return f.gen.Fingerprint(f.id, args)
}

// Call returns the stored result for args, or invokes the wrapped function and
// stores its result. Only argument hashing errors and errors from the wrapped
// function are returned; store and decode failures degrade to a miss.
func (f *Func[A, R]) Call(ctx context.Context, args A) (R, error) {
	var zero R
	f.spot.Freeze()

	fp, err := f.Fingerprint(args)
	if err != nil {
		return zero, err
	}
	key := fp.String()

	if v, ok := f.lookup(ctx, key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !f.spot.cfg.SingleFlight {
		v, _, err := f.compute(ctx, key, args)
		return v, err
	}
	return f.shared(ctx, key, args)
}

// Lookup reports the stored result for args without invoking the wrapped function.
func (f *Func[A, R]) Lookup(ctx context.Context, args A) (R, bool, error) {
	var zero R
	fp, err := f.Fingerprint(args)
	if err != nil {
		return zero, false, err
	}
	v, ok := f.lookup(ctx, fp.String())
	return v, ok, nil
}

// Forget deletes the stored result for args.
func (f *Func[A, R]) Forget(ctx context.Context, args A) error {
	fp, err := f.Fingerprint(args)
	if err != nil {
		return err
	}
	key := fp.String()
	start := time.Now()
	err = f.spot.storeDelete(ctx, key)
	f.spot.observe(ctx, Event{Func: f.name, Fingerprint: key, Op: OpForget, Outcome: storeOutcome(err), Err: err, Duration: time.Since(start)})
	if err != nil {
		return errors.Wrapf(err, "forget %s", key)
	}
	return nil
}

// flight is what the leader of a coalesced call hands to its waiters.
type flight[R any] struct {
	val   R
	entry []byte // encoded val, nil when encoding failed
}

// panicError carries a wrapped function's panic out of the singleflight
// goroutine so it can be raised again on each caller's goroutine.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("spot: wrapped function panicked: %v", p.value)
}

func (f *Func[A, R]) shared(ctx context.Context, key string, args A) (R, error) {
	var zero R
	led := false
	ch := f.spot.flights.DoChan(key, func() (res any, err error) {
		led = true
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{value: r}
			}
		}()
		v, entry, err := f.compute(ctx, key, args)
		return flight[R]{val: v, entry: entry}, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if pe, ok := res.Err.(*panicError); ok {
			panic(pe.value)
		}
		if res.Err != nil {
			// the leader's own context ended; this caller is still live
			if isContextErr(res.Err) && ctx.Err() == nil {
				v, _, err := f.compute(ctx, key, args)
				return v, err
			}
			return zero, res.Err
		}
		fl, _ := res.Val.(flight[R])
		if !res.Shared {
			return fl.val, nil
		}
		f.spot.observe(ctx, Event{Func: f.name, Fingerprint: key, Op: OpCompute, Outcome: OutcomeShared})
		if led || fl.entry == nil {
			return fl.val, nil
		}
		// waiters get their own copy so slices and maps are not shared
		v, err := f.decode(fl.entry)
		if err != nil {
			f.log.Warn("waiter decode failed, sharing leader value", zap.String("fingerprint", key), zap.Error(err))
			return fl.val, nil
		}
		return v, nil
	}
}

func (f *Func[A, R]) lookup(ctx context.Context, key string) (R, bool) {
	var zero R
	start := time.Now()
	body, ok, err := f.spot.storeGet(ctx, key)
	ev := Event{Func: f.name, Fingerprint: key, Op: OpLookup}
	if err != nil {
		ev.Outcome, ev.Err, ev.Duration = storeOutcome(err), err, time.Since(start)
		f.spot.observe(ctx, ev)
		f.log.Warn("store lookup failed", zap.String("fingerprint", key),
			zap.String("driver", string(f.spot.store.Driver())), zap.Error(err))
		return zero, false
	}
	if !ok {
		ev.Outcome, ev.Duration = OutcomeMiss, time.Since(start)
		f.spot.observe(ctx, ev)
		f.log.Debug("miss", zap.String("fingerprint", key))
		return zero, false
	}

	v, err := f.decode(body)
	ev.Duration = time.Since(start)
	if err != nil {
		ev.Outcome, ev.Err = decodeOutcome(err), err
		f.spot.observe(ctx, ev)
		f.log.Warn("discarding unreadable entry", zap.String("fingerprint", key),
			zap.String("outcome", string(ev.Outcome)), zap.Error(err))
		return zero, false
	}
	ev.Outcome = OutcomeHit
	f.spot.observe(ctx, ev)
	f.log.Debug("hit", zap.String("fingerprint", key))
	return v, true
}

func (f *Func[A, R]) decode(body []byte) (R, error) {
	var zero R
	env, err := f.ser.Deserialize(body)
	if err != nil {
		return zero, err
	}
	reg, ok := f.spot.registry.Lookup(codec.Code(env.Code))
	if !ok {
		return zero, errors.Wrapf(ErrUnknownCode, "entry code %d", env.Code)
	}
	if !f.dynamic && env.Code != f.id.ResultCode {
		return zero, errors.Wrapf(ErrUnknownCode, "entry code %d, want %d", env.Code, f.id.ResultCode)
	}
	version, raw, err := f.ser.UnmarshalBody(env.Payload)
	if err != nil {
		return zero, err
	}
	if version != reg.Version {
		return zero, errors.Wrapf(ErrStaleEntry, "code %d has version %q, registered %q", env.Code, version, reg.Version)
	}
	v, err := reg.Codec.Decode(raw)
	if err != nil {
		return zero, errors.Mark(errors.Wrapf(err, "decode code %d", env.Code), ErrCorruptEntry)
	}
	typed, ok := v.(R)
	if !ok {
		return zero, errors.Wrapf(ErrCorruptEntry, "code %d decoded to %T", env.Code, v)
	}
	return typed, nil
}

func (f *Func[A, R]) encode(v R) ([]byte, error) {
	reg, data, err := f.spot.registry.Encode(v)
	if err != nil {
		return nil, err
	}
	body, err := f.ser.MarshalBody(reg.Version, data)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s body", f.ser.Name())
	}
	return f.ser.Serialize(serializer.Envelope{Code: uint32(reg.Code), Payload: body})
}

// compute runs the wrapped function and stores its result. The encoded entry
// is returned alongside the value, nil when the value could not be encoded.
func (f *Func[A, R]) compute(ctx context.Context, key string, args A) (R, []byte, error) {
	start := time.Now()
	v, err := f.fn(ctx, args)
	ev := Event{Func: f.name, Fingerprint: key, Op: OpCompute, Outcome: OutcomeOK, Err: err, Duration: time.Since(start)}
	if err != nil {
		ev.Outcome = OutcomeError
	}
	f.spot.observe(ctx, ev)
	if err != nil {
		return v, nil, err
	}

	entry, err := f.encode(v)
	if err != nil {
		f.spot.observe(ctx, Event{Func: f.name, Fingerprint: key, Op: OpStore, Outcome: OutcomeError, Err: err})
		f.log.Warn("result not cached", zap.String("fingerprint", key), zap.Error(err))
		return v, nil, nil
	}

	if f.bgSave {
		saveCtx := context.WithoutCancel(ctx)
		if f.spot.background(func() { f.save(saveCtx, key, entry) }) {
			return v, entry, nil
		}
	}
	f.save(ctx, key, entry)
	return v, entry, nil
}

func (f *Func[A, R]) save(ctx context.Context, key string, entry []byte) {
	start := time.Now()
	err := f.spot.storeSet(ctx, key, entry, f.ttl)
	f.spot.observe(ctx, Event{Func: f.name, Fingerprint: key, Op: OpStore, Outcome: storeOutcome(err), Err: err, Duration: time.Since(start)})
	if err != nil {
		f.log.Warn("store write failed", zap.String("fingerprint", key),
			zap.String("driver", string(f.spot.store.Driver())), zap.Error(err))
	}
}

func decodeOutcome(err error) Outcome {
	switch {
	case errors.Is(err, ErrUnknownCode):
		return OutcomeUnknown
	case errors.Is(err, ErrStaleEntry):
		return OutcomeStale
	default:
		return OutcomeCorrupt
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
