package serializer

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goforj/spot/codec"
)

// Struct fields without a msgpack tag fall back to their json tag, so types
// written for the JSON serializer keep their field names.
const fallbackTag = "json"

type msgpackBody struct {
	V *string            `msgpack:"v"`
	D msgpack.RawMessage `msgpack:"d"`
}

type msgpackRaw msgpack.RawMessage

func (r msgpackRaw) Decode(into any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(r))
	dec.SetCustomStructTag(fallbackTag)
	return dec.Decode(into)
}

type msgpackSerializer struct{}

// MsgPack returns the compact binary serializer.
func MsgPack() Serializer { return msgpackSerializer{} }

func (msgpackSerializer) Name() string { return "msgpack" }

func (msgpackSerializer) Serialize(env Envelope) ([]byte, error) { return frame(env) }

func (msgpackSerializer) Deserialize(b []byte) (Envelope, error) { return unframe(b) }

func (msgpackSerializer) MarshalBody(version string, data any) ([]byte, error) {
	d, err := marshalMsgpack(data)
	if err != nil {
		return nil, errors.Wrap(err, "serializer: msgpack body")
	}
	return marshalMsgpack(msgpackBody{V: &version, D: d})
}

func (msgpackSerializer) UnmarshalBody(payload []byte) (string, codec.Raw, error) {
	var body msgpackBody
	r := bytes.NewReader(payload)
	if err := msgpack.NewDecoder(r).Decode(&body); err != nil {
		return "", nil, corrupt(err, "serializer: msgpack body")
	}
	if r.Len() != 0 {
		return "", nil, errors.Wrapf(ErrCorruptEntry, "%d trailing bytes after msgpack body", r.Len())
	}
	if body.V == nil || len(body.D) == 0 {
		return "", nil, errors.Wrap(ErrCorruptEntry, "msgpack body missing version or data")
	}
	return *body.V, msgpackRaw(body.D), nil
}

func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag(fallbackTag)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
