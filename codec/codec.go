// Package codec maps application types to stable numeric codes with custom
// encode/decode functions, tagged with a schema version.
//
// A registered type is encoded to a structured value (anything the active
// serializer can marshal) and decoded back from a [Raw] handed over by the
// serializer. The numeric code is persisted next to the payload, so a cache
// entry whose code is no longer registered is rejected instead of being
// misinterpreted.
package codec

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Code identifies a registered type inside persisted envelopes.
type Code uint32

// Raw is a structured value awaiting decode into a concrete Go value.
type Raw interface {
	Decode(into any) error
}

// Codec converts one Go type to and from its structured representation.
type Codec interface {
	Type() reflect.Type
	Version() string
	Encode(v any) (any, error)
	Decode(raw Raw) (any, error)
}

type funcCodec[T any] struct {
	version string
	encode  func(T) (any, error)
	decode  func(Raw) (T, error)
}

// New builds a codec for T from an encoder and a decoder.
//
//	c := codec.New("v1",
//		func(u UserList) (any, error) { return u, nil },
//		func(raw codec.Raw) (UserList, error) {
//			var out UserList
//			err := raw.Decode(&out)
//			return out, err
//		},
//	)
func New[T any](version string, encode func(T) (any, error), decode func(Raw) (T, error)) Codec {
	return &funcCodec[T]{version: version, encode: encode, decode: decode}
}

// Struct returns a codec that stores T as-is and decodes into a fresh T.
func Struct[T any](version string) Codec {
	return New(version,
		func(v T) (any, error) { return v, nil },
		func(raw Raw) (T, error) {
			var out T
			err := raw.Decode(&out)
			return out, err
		},
	)
}

func (c *funcCodec[T]) Type() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (c *funcCodec[T]) Version() string { return c.version }

func (c *funcCodec[T]) Encode(v any) (any, error) {
	typed, ok := v.(T)
	if !ok {
		return nil, errors.Newf("codec: cannot encode %T as %s", v, c.Type())
	}
	if c.encode == nil {
		return nil, errors.New("codec: encoder is nil")
	}
	return c.encode(typed)
}

func (c *funcCodec[T]) Decode(raw Raw) (any, error) {
	if c.decode == nil {
		return nil, errors.New("codec: decoder is nil")
	}
	return c.decode(raw)
}
