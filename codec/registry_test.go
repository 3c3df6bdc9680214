package codec

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
)

type userList struct {
	Users []string `json:"users"`
}

type jsonRaw []byte

func (r jsonRaw) Decode(into any) error { return json.Unmarshal(r, into) }

func rawOf(t *testing.T, v any) Raw {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return jsonRaw(b)
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(10, Struct[userList]("v1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	in := userList{Users: []string{"ada", "grace"}}
	binding, data, err := reg.Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if binding.Code != 10 || binding.Version != "v1" {
		t.Fatalf("unexpected registration: %+v", binding)
	}

	out, err := reg.Decode(10, rawOf(t, data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch: got %#v want %#v", out, in)
	}
}

func TestRegistryCustomCodec(t *testing.T) {
	reg := NewRegistry()
	c := New("v2",
		func(u userList) (any, error) { return map[string]int{"n": len(u.Users)}, nil },
		func(raw Raw) (userList, error) {
			var m map[string]int
			if err := raw.Decode(&m); err != nil {
				return userList{}, err
			}
			return userList{Users: make([]string, m["n"])}, nil
		},
	)
	if err := reg.Register(11, c); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, data, err := reg.Encode(userList{Users: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := reg.Decode(11, rawOf(t, data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := len(out.(userList).Users); got != 3 {
		t.Fatalf("expected 3 users, got %d", got)
	}
}

func TestRegistryRejectsConflicts(t *testing.T) {
	type other struct{ N int }

	c := Struct[userList]("v1")
	tests := []struct {
		name  string
		setup func(*Registry) error
		want  error
	}{
		{
			name: "same code different type",
			setup: func(r *Registry) error {
				if err := r.Register(1, c); err != nil {
					return err
				}
				return r.Register(1, Struct[other]("v1"))
			},
			want: ErrDuplicateCode,
		},
		{
			name: "same type different code",
			setup: func(r *Registry) error {
				if err := r.Register(1, c); err != nil {
					return err
				}
				return r.Register(2, c)
			},
			want: ErrDuplicateType,
		},
		{
			name: "same code same type different codec",
			setup: func(r *Registry) error {
				if err := r.Register(1, c); err != nil {
					return err
				}
				return r.Register(1, Struct[userList]("v2"))
			},
			want: ErrDuplicateType,
		},
		{
			name: "after freeze",
			setup: func(r *Registry) error {
				r.Freeze()
				return r.Register(1, c)
			},
			want: ErrRegistryFrozen,
		},
		{
			name:  "nil codec",
			setup: func(r *Registry) error { return r.Register(1, nil) },
			want:  ErrInvalidCodec,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.setup(NewRegistry())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrRegistration) {
				t.Fatalf("expected error to be marked as registration error, got %v", err)
			}
		})
	}
}

func TestRegistryIdempotentReRegistration(t *testing.T) {
	reg := NewRegistry()
	c := Struct[userList]("v1")
	if err := reg.Register(5, c); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.Register(5, c); err != nil {
		t.Fatalf("expected idempotent register, got %v", err)
	}
	if codes := reg.Codes(); len(codes) != 1 || codes[0] != 5 {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestRegistryUnknownAndUnregistered(t *testing.T) {
	reg := NewRegistry()
	if _, _, err := reg.Encode(userList{}); !errors.Is(err, ErrUnregisteredType) {
		t.Fatalf("expected unregistered type, got %v", err)
	}
	if _, _, err := reg.Encode(nil); !errors.Is(err, ErrUnregisteredType) {
		t.Fatalf("expected unregistered type for nil, got %v", err)
	}
	if _, err := reg.Decode(99, jsonRaw("{}")); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("expected unknown code, got %v", err)
	}
}

func TestRegistryDecodeErrorIsWrapped(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(3, Struct[userList]("v1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err := reg.Decode(3, jsonRaw("not json"))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected wrapped json syntax error, got %v", err)
	}
}

func TestRegistryCodesSorted(t *testing.T) {
	type a struct{}
	type b struct{}
	type c struct{}
	reg := NewRegistry()
	_ = reg.Register(30, Struct[a]("v1"))
	_ = reg.Register(10, Struct[b]("v1"))
	_ = reg.Register(20, Struct[c]("v1"))
	got := reg.Codes()
	want := []Code{10, 20, 30}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRegistryConcurrentReadsAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(1, Struct[userList]("v1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	reg.Freeze()
	if !reg.Frozen() {
		t.Fatalf("expected frozen registry")
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := reg.Lookup(1); !ok {
				t.Errorf("expected code 1")
			}
			if _, ok := reg.LookupType(reflect.TypeOf(userList{})); !ok {
				t.Errorf("expected userList type")
			}
		}()
	}
	wg.Wait()
}

// sliceCodec is not comparable, so two equal values cannot be told apart.
type sliceCodec struct {
	tags []string
}

func (sliceCodec) Type() reflect.Type { return reflect.TypeOf(userList{}) }
func (sliceCodec) Version() string { return "v1" }
func (sliceCodec) Encode(v any) (any, error) { return v, nil }
func (sliceCodec) Decode(raw Raw) (any, error) {
	var out userList
	err := raw.Decode(&out)
	return out, err
}

func TestRegistryUncomparableCodecReRegistration(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(10, sliceCodec{tags: []string{"a"}}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := reg.Register(10, sliceCodec{tags: []string{"a"}})
	if !errors.Is(err, ErrDuplicateType) || !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected duplicate type registration error, got %v", err)
	}
}
