// Package keygen derives deterministic fingerprints for memoized calls.
//
// A Generator is compiled once from the argument type of a function and a
// Map of per-parameter directives. Struct arguments contribute one parameter
// per field in declaration order; any other argument type is a single
// parameter named "arg". Field names can be overridden, and fields excluded,
// with a struct tag:
//
//	type Args struct {
//		Client *openai.Client `spot:"client,ignore"`
//		N      int            `spot:"n"`
//	}
package keygen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"reflect"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// Directive tells the generator how one parameter contributes to the key.
type Directive uint8

const (
	// Include hashes the parameter by value. It is the default.
	Include Directive = iota
	// Ignore leaves the parameter out of the key entirely.
	Ignore
	// FileContent treats a string parameter as a path and hashes the file bytes.
	FileContent
	// PathStat treats a string parameter as a path and hashes its size and mtime.
	PathStat
)

func (d Directive) String() string {
	switch d {
	case Include:
		return "include"
	case Ignore:
		return "ignore"
	case FileContent:
		return "file_content"
	case PathStat:
		return "path_stat"
	default:
		return "unknown"
	}
}

// Map assigns directives by parameter name. Unlisted parameters are included.
type Map map[string]Directive

// Algorithm selects the fingerprint hash.
type Algorithm uint8

const (
	SHA256 Algorithm = iota
	XXHash64
)

func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case XXHash64:
		return "xxhash64"
	default:
		return "unknown"
	}
}

func (a Algorithm) new() hash.Hash {
	if a == XXHash64 {
		return xxhash.New()
	}
	return sha256.New()
}

// Option configures a Generator.
type Option func(*Generator)

// WithAlgorithm selects the hash used for fingerprints.
func WithAlgorithm(a Algorithm) Option {
	return func(g *Generator) { g.algo = a }
}

// Identity scopes a fingerprint to one function, version and result schema.
type Identity struct {
	Namespace     string
	Name          string
	Version       string
	ResultCode    uint32
	ResultVersion string
}

// Fingerprint is the digest used as a cache key.
type Fingerprint []byte

func (f Fingerprint) String() string { return hex.EncodeToString(f) }

// Param is one compiled parameter.
type Param struct {
	Name      string
	Directive Directive
	index     int // struct field index, -1 for a whole non-struct argument
}

// Generator computes fingerprints for one argument type. It is immutable after
// New and safe for concurrent use.
type Generator struct {
	argType reflect.Type
	params  []Param
	algo    Algorithm
}

const tagKey = "spot"

// New compiles a generator for argType using the directives in m.
func New(argType reflect.Type, m Map, opts ...Option) (*Generator, error) {
	if argType == nil {
		return nil, errors.Wrap(ErrArgumentTypeMismatch, "keygen: nil argument type")
	}
	g := &Generator{argType: argType}
	for _, opt := range opts {
		opt(g)
	}
	if g.algo != SHA256 && g.algo != XXHash64 {
		return nil, errors.Newf("keygen: unsupported algorithm %d", g.algo)
	}

	if argType.Kind() == reflect.Struct {
		seen := make(map[string]bool)
		for i := 0; i < argType.NumField(); i++ {
			field := argType.Field(i)
			if !field.IsExported() {
				continue
			}
			name, directive := parseTag(field)
			if seen[name] {
				return nil, errors.Wrapf(ErrDuplicateParam, "%q in %s", name, argType)
			}
			seen[name] = true
			g.params = append(g.params, Param{Name: name, Directive: directive, index: i})
		}
	} else {
		g.params = []Param{{Name: "arg", Directive: Include, index: -1}}
	}

	for name, directive := range m {
		p := g.param(name)
		if p == nil {
			return nil, errors.Wrapf(ErrUnknownParam, "%q is not a parameter of %s", name, argType)
		}
		p.Directive = directive
	}

	for _, p := range g.params {
		if err := validate(p, g.paramType(p)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func parseTag(field reflect.StructField) (string, Directive) {
	tag, ok := field.Tag.Lookup(tagKey)
	if !ok {
		return field.Name, Include
	}
	if tag == "-" {
		return field.Name, Ignore
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	directive := Include
	for _, opt := range strings.Split(opts, ",") {
		switch strings.TrimSpace(opt) {
		case "ignore":
			directive = Ignore
		case "file":
			directive = FileContent
		case "stat":
			directive = PathStat
		}
	}
	return name, directive
}

func validate(p Param, t reflect.Type) error {
	switch p.Directive {
	case Include, Ignore:
		return nil
	case FileContent, PathStat:
		if t.Kind() != reflect.String {
			return errors.Wrapf(ErrInvalidDirective, "%s on %q requires a string path, got %s", p.Directive, p.Name, t)
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidDirective, "directive %d on %q", p.Directive, p.Name)
	}
}

func (g *Generator) param(name string) *Param {
	for i := range g.params {
		if g.params[i].Name == name {
			return &g.params[i]
		}
	}
	return nil
}

func (g *Generator) paramType(p Param) reflect.Type {
	if p.index < 0 {
		return g.argType
	}
	return g.argType.Field(p.index).Type
}

// Params returns the compiled parameters in declaration order.
func (g *Generator) Params() []Param {
	out := make([]Param, len(g.params))
	copy(out, g.params)
	return out
}

// Algorithm reports the configured hash.
func (g *Generator) Algorithm() Algorithm { return g.algo }

// Fingerprint hashes id together with the non-ignored parameters of args.
func (g *Generator) Fingerprint(id Identity, args any) (Fingerprint, error) {
	rv := reflect.ValueOf(args)
	if !rv.IsValid() {
		// nil interface argument; only valid when the argument type is an interface
		if g.argType.Kind() != reflect.Interface {
			return nil, errors.Wrapf(ErrArgumentTypeMismatch, "nil for %s", g.argType)
		}
		rv = reflect.Zero(g.argType)
	}
	if rv.Type() != g.argType {
		if g.argType.Kind() != reflect.Interface || !rv.Type().Implements(g.argType) {
			return nil, errors.Wrapf(ErrArgumentTypeMismatch, "got %s, want %s", rv.Type(), g.argType)
		}
	}

	h := g.algo.new()
	w := &writer{h: h}
	w.putString("spot/fingerprint/v1")
	w.putString(id.Namespace)
	w.putString(id.Name)
	w.putString(id.Version)
	w.putUvarint(uint64(id.ResultCode))
	w.putString(id.ResultVersion)

	for _, p := range g.params {
		if p.Directive == Ignore {
			continue
		}
		v := rv
		if p.index >= 0 {
			v = rv.Field(p.index)
		}
		w.putString(p.Name)
		w.putByte(byte(p.Directive))
		var err error
		switch p.Directive {
		case FileContent:
			err = writeFileContent(w, p.Name, v.String())
		case PathStat:
			err = writePathStat(w, p.Name, v.String())
		default:
			enc := &encoder{w: w, param: p.Name}
			err = enc.value(v, 0)
		}
		if err != nil {
			return nil, err
		}
	}
	return Fingerprint(h.Sum(nil)), nil
}

type writer struct {
	h   io.Writer
	buf [binary.MaxVarintLen64]byte
}

func (w *writer) putByte(b byte) {
	w.buf[0] = b
	_, _ = w.h.Write(w.buf[:1])
}

func (w *writer) putUvarint(v uint64) {
	n := binary.PutUvarint(w.buf[:], v)
	_, _ = w.h.Write(w.buf[:n])
}

func (w *writer) putVarint(v int64) {
	n := binary.PutVarint(w.buf[:], v)
	_, _ = w.h.Write(w.buf[:n])
}

func (w *writer) putUint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[:8], v)
	_, _ = w.h.Write(w.buf[:8])
}

func (w *writer) putBytes(b []byte) {
	w.putUvarint(uint64(len(b)))
	_, _ = w.h.Write(b)
}

func (w *writer) putString(s string) {
	w.putUvarint(uint64(len(s)))
	_, _ = w.h.Write([]byte(s))
}
