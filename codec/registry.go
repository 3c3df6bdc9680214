package codec

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Registration binds a code to a type and its codec.
type Registration struct {
	Code    Code
	Type    reflect.Type
	Codec   Codec
	Version string
}

// Registry holds code and type bindings.
// Mutations are allowed until Freeze; afterwards reads skip the lock.
type Registry struct {
	mu     sync.RWMutex
	frozen atomic.Bool
	byCode map[Code]Registration
	byType map[reflect.Type]Registration
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		byCode: make(map[Code]Registration),
		byType: make(map[reflect.Type]Registration),
	}
}

// Register binds code to c's type.
// Registering the same codec value under the same code again is a no-op.
func (r *Registry) Register(code Code, c Codec) error {
	if c == nil || c.Type() == nil {
		return registrationError(errors.Wrapf(ErrInvalidCodec, "code %d", code))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return registrationError(errors.Wrapf(ErrRegistryFrozen, "register code %d", code))
	}

	typ := c.Type()
	if existing, ok := r.byCode[code]; ok {
		if existing.Type != typ {
			return registrationError(errors.Wrapf(ErrDuplicateCode,
				"code %d is bound to %s, cannot bind %s", code, existing.Type, typ))
		}
		if sameCodec(existing.Codec, c) {
			return nil
		}
		return registrationError(errors.Wrapf(ErrDuplicateType,
			"%s is already registered under code %d with a different codec", typ, code))
	}
	if existing, ok := r.byType[typ]; ok {
		return registrationError(errors.Wrapf(ErrDuplicateType,
			"%s is already registered under code %d", typ, existing.Code))
	}

	reg := Registration{Code: code, Type: typ, Codec: c, Version: c.Version()}
	r.byCode[code] = reg
	r.byType[typ] = reg
	return nil
}

// sameCodec reports whether a and b are the same comparable codec value.
// Codecs with uncomparable dynamic types never match.
func sameCodec(a, b Codec) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Lookup returns the registration bound to code.
func (r *Registry) Lookup(code Code) (Registration, bool) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	reg, ok := r.byCode[code]
	return reg, ok
}

// LookupType returns the registration for t.
func (r *Registry) LookupType(t reflect.Type) (Registration, bool) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	reg, ok := r.byType[t]
	return reg, ok
}

// Codes returns every registered code in ascending order.
func (r *Registry) Codes() []Code {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	codes := make([]Code, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Encode resolves v by its dynamic type and runs the bound encoder.
func (r *Registry) Encode(v any) (Registration, any, error) {
	if v == nil {
		return Registration{}, nil, errors.Wrap(ErrUnregisteredType, "encode nil value")
	}
	reg, ok := r.LookupType(reflect.TypeOf(v))
	if !ok {
		return Registration{}, nil, errors.Wrapf(ErrUnregisteredType, "encode %T", v)
	}
	data, err := reg.Codec.Encode(v)
	if err != nil {
		return reg, nil, errors.Wrapf(err, "encode %s (code %d)", reg.Type, reg.Code)
	}
	return reg, data, nil
}

// Decode resolves code and runs the bound decoder against raw.
func (r *Registry) Decode(code Code, raw Raw) (any, error) {
	reg, ok := r.Lookup(code)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCode, "decode code %d", code)
	}
	v, err := reg.Codec.Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s (code %d)", reg.Type, code)
	}
	return v, nil
}
