// Package serializer frames cache entries on the wire.
//
// An entry is laid out as
//
//	uvarint(type code) || body
//
// where body is the backend encoding of {v: schema version, d: data}. The
// code prefix is backend independent so tools can read it without knowing
// which serializer wrote the entry. There is no auto-detection: a reader must
// use the serializer the entry was written with.
package serializer

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/goforj/spot/codec"
)

// ErrCorruptEntry is returned for any entry that cannot be framed or decoded.
var ErrCorruptEntry = errors.New("serializer: corrupt cache entry")

// ErrUnknownSerializer is returned by ByName.
var ErrUnknownSerializer = errors.New("serializer: unknown serializer")

// Envelope is a framed cache entry.
type Envelope struct {
	Code    uint32
	Payload []byte
}

// Serializer converts envelopes and bodies to and from bytes.
type Serializer interface {
	Name() string
	Serialize(env Envelope) ([]byte, error)
	Deserialize(b []byte) (Envelope, error)
	MarshalBody(version string, data any) ([]byte, error)
	UnmarshalBody(payload []byte) (string, codec.Raw, error)
}

// ByName returns the built-in serializer registered under name.
func ByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "msgpack":
		return MsgPack(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSerializer, "%q", name)
	}
}

// frame writes the code prefix followed by payload.
func frame(env Envelope) ([]byte, error) {
	if len(env.Payload) == 0 {
		return nil, errors.New("serializer: empty payload")
	}
	out := make([]byte, binary.MaxVarintLen32, binary.MaxVarintLen32+len(env.Payload))
	n := binary.PutUvarint(out, uint64(env.Code))
	out = append(out[:n], env.Payload...)
	return out, nil
}

// unframe splits an entry into code and payload.
func unframe(b []byte) (Envelope, error) {
	code, n := binary.Uvarint(b)
	if n <= 0 {
		return Envelope{}, errors.Wrap(ErrCorruptEntry, "bad code prefix")
	}
	if code > math.MaxUint32 {
		return Envelope{}, errors.Wrapf(ErrCorruptEntry, "code %d out of range", code)
	}
	if n == len(b) {
		return Envelope{}, errors.Wrap(ErrCorruptEntry, "missing payload")
	}
	return Envelope{Code: uint32(code), Payload: b[n:]}, nil
}

// PeekCode reads the type code of a serialized entry without touching the body.
func PeekCode(b []byte) (uint32, error) {
	env, err := unframe(b)
	if err != nil {
		return 0, err
	}
	return env.Code, nil
}

func corrupt(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrCorruptEntry)
}
