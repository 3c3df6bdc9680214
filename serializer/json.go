package serializer

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/goforj/spot/codec"
)

type jsonBody struct {
	V *string         `json:"v"`
	D json.RawMessage `json:"d"`
}

type jsonRaw json.RawMessage

func (r jsonRaw) Decode(into any) error {
	return json.Unmarshal(r, into)
}

type jsonSerializer struct{}

// JSON returns the default structural serializer.
func JSON() Serializer { return jsonSerializer{} }

func (jsonSerializer) Name() string { return "json" }

func (jsonSerializer) Serialize(env Envelope) ([]byte, error) { return frame(env) }

func (jsonSerializer) Deserialize(b []byte) (Envelope, error) { return unframe(b) }

func (jsonSerializer) MarshalBody(version string, data any) ([]byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "serializer: json body")
	}
	return json.Marshal(jsonBody{V: &version, D: d})
}

func (jsonSerializer) UnmarshalBody(payload []byte) (string, codec.Raw, error) {
	var body jsonBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", nil, corrupt(err, "serializer: json body")
	}
	if body.V == nil || len(body.D) == 0 {
		return "", nil, errors.Wrap(ErrCorruptEntry, "json body missing version or data")
	}
	return *body.V, jsonRaw(body.D), nil
}
