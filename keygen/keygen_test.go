package keygen

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

type fakeClient struct {
	token string
	calls int
}

type usersArgs struct {
	Client *fakeClient `spot:"client"`
	N      int        `spot:"n"`
}

var testID = Identity{Namespace: "testusers", Name: "get_test_users", Version: "v1", ResultCode: 10, ResultVersion: "v1"}

func mustGenerator(t *testing.T, argType reflect.Type, m Map, opts ...Option) *Generator {
	t.Helper()
	g, err := New(argType, m, opts...)
	if err != nil {
		t.Fatalf("new generator failed: %v", err)
	}
	return g
}

func mustFingerprint(t *testing.T, g *Generator, id Identity, args any) Fingerprint {
	t.Helper()
	fp, err := g.Fingerprint(id, args)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	return fp
}

func TestIgnoredParameterDoesNotAffectFingerprint(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf(usersArgs{}), Map{"client": Ignore})

	a := mustFingerprint(t, g, testID, usersArgs{Client: &fakeClient{token: "a"}, N: 5})
	b := mustFingerprint(t, g, testID, usersArgs{Client: &fakeClient{token: "b", calls: 9}, N: 5})
	if !bytes.Equal(a, b) {
		t.Fatalf("expected ignored client to be excluded: %s vs %s", a, b)
	}

	c := mustFingerprint(t, g, testID, usersArgs{Client: &fakeClient{token: "a"}, N: 6})
	if bytes.Equal(a, c) {
		t.Fatalf("expected included parameter to change fingerprint")
	}
}

func TestIgnoreViaStructTag(t *testing.T) {
	type args struct {
		Client *fakeClient `spot:"client,ignore"`
		Skip   string     `spot:"-"`
		N      int
	}
	g := mustGenerator(t, reflect.TypeOf(args{}), nil)
	a := mustFingerprint(t, g, testID, args{Client: &fakeClient{token: "x"}, Skip: "one", N: 1})
	b := mustFingerprint(t, g, testID, args{Client: nil, Skip: "two", N: 1})
	if !bytes.Equal(a, b) {
		t.Fatalf("expected tagged ignores to be excluded")
	}
	params := g.Params()
	if len(params) != 3 || params[0].Name != "client" || params[1].Name != "Skip" || params[2].Name != "N" {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	type args struct {
		Tags  map[string]int
		Names []string
		When  time.Time
	}
	g := mustGenerator(t, reflect.TypeOf(args{}), nil)
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := mustFingerprint(t, g, testID, args{Tags: map[string]int{"a": 1, "b": 2, "c": 3}, Names: []string{"x"}, When: when})
	for i := 0; i < 20; i++ {
		again := mustFingerprint(t, g, testID, args{Tags: map[string]int{"c": 3, "a": 1, "b": 2}, Names: []string{"x"}, When: when})
		if !bytes.Equal(first, again) {
			t.Fatalf("expected map iteration order not to matter")
		}
	}
	if len(first) != 32 {
		t.Fatalf("expected sha256 length, got %d", len(first))
	}
}

func TestIdentityIsPartOfFingerprint(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf(0), nil)
	base := mustFingerprint(t, g, testID, 5)

	variants := map[string]Identity{
		"namespace":      {Namespace: "other", Name: testID.Name, Version: testID.Version, ResultCode: 10, ResultVersion: "v1"},
		"name":           {Namespace: testID.Namespace, Name: "other", Version: testID.Version, ResultCode: 10, ResultVersion: "v1"},
		"version":        {Namespace: testID.Namespace, Name: testID.Name, Version: "v2", ResultCode: 10, ResultVersion: "v1"},
		"result code":    {Namespace: testID.Namespace, Name: testID.Name, Version: testID.Version, ResultCode: 11, ResultVersion: "v1"},
		"result version": {Namespace: testID.Namespace, Name: testID.Name, Version: testID.Version, ResultCode: 10, ResultVersion: "v2"},
	}
	for name, id := range variants {
		t.Run(name, func(t *testing.T) {
			if bytes.Equal(base, mustFingerprint(t, g, id, 5)) {
				t.Fatalf("expected %s to change fingerprint", name)
			}
		})
	}
}

func TestFieldBoundariesDoNotCollide(t *testing.T) {
	type args struct {
		A string
		B string
	}
	g := mustGenerator(t, reflect.TypeOf(args{}), nil)
	a := mustFingerprint(t, g, testID, args{A: "ab", B: "c"})
	b := mustFingerprint(t, g, testID, args{A: "a", B: "bc"})
	if bytes.Equal(a, b) {
		t.Fatalf("expected length prefixes to separate fields")
	}
}

func TestNilPointerDistinctFromZeroValue(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf((*int)(nil)), nil)
	zero := 0
	a := mustFingerprint(t, g, testID, (*int)(nil))
	b := mustFingerprint(t, g, testID, &zero)
	if bytes.Equal(a, b) {
		t.Fatalf("expected nil pointer to differ from pointer to zero")
	}
}

func TestUnknownParameterInMap(t *testing.T) {
	_, err := New(reflect.TypeOf(usersArgs{}), Map{"clinet": Ignore})
	if !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("expected unknown param error, got %v", err)
	}
	if !strings.Contains(err.Error(), "clinet") {
		t.Fatalf("expected error to name the parameter, got %v", err)
	}
}

func TestDuplicateParameterName(t *testing.T) {
	type args struct {
		A int `spot:"x"`
		B int `spot:"x"`
	}
	if _, err := New(reflect.TypeOf(args{}), nil); !errors.Is(err, ErrDuplicateParam) {
		t.Fatalf("expected duplicate param error, got %v", err)
	}
}

func TestUnhashableArgumentNamesParameter(t *testing.T) {
	type inner struct {
		Callback func()
	}
	type args struct {
		Opts []inner
		N    int
	}
	g := mustGenerator(t, reflect.TypeOf(args{}), nil)
	_, err := g.Fingerprint(testID, args{Opts: []inner{{}, {Callback: func() {}}}})
	if !errors.Is(err, ErrUnhashableArgument) {
		t.Fatalf("expected unhashable error, got %v", err)
	}
	var uerr *UnhashableError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnhashableError, got %T", err)
	}
	if uerr.Param != "Opts" {
		t.Fatalf("expected param Opts, got %q", uerr.Param)
	}
	if got := strings.Join(uerr.Path, ""); got != "[0].Callback" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestUnhashableKinds(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf((*any)(nil)).Elem(), nil)
	for name, v := range map[string]any{
		"func":    func() {},
		"chan":    make(chan int),
		"uintptr": uintptr(1),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := g.Fingerprint(testID, v); !errors.Is(err, ErrUnhashableArgument) {
				t.Fatalf("expected unhashable error, got %v", err)
			}
		})
	}
}

func TestCyclicValueIsUnhashable(t *testing.T) {
	type node struct {
		Next *node
	}
	n := &node{}
	n.Next = n
	g := mustGenerator(t, reflect.TypeOf(n), nil)
	if _, err := g.Fingerprint(testID, n); !errors.Is(err, ErrUnhashableArgument) {
		t.Fatalf("expected cycle to be unhashable, got %v", err)
	}
}

func TestSharedPointerIsNotACycle(t *testing.T) {
	type pair struct {
		A *int
		B *int
	}
	v := 3
	g := mustGenerator(t, reflect.TypeOf(pair{}), nil)
	if _, err := g.Fingerprint(testID, pair{A: &v, B: &v}); err != nil {
		t.Fatalf("expected shared pointer to hash, got %v", err)
	}
}

type customKey struct {
	id    string
	noise int
}

func (c customKey) HashKey() ([]byte, error) { return []byte(c.id), nil }

func TestHashableUsesOwnBytes(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf(customKey{}), nil)
	a := mustFingerprint(t, g, testID, customKey{id: "x", noise: 1})
	b := mustFingerprint(t, g, testID, customKey{id: "x", noise: 2})
	if !bytes.Equal(a, b) {
		t.Fatalf("expected HashKey to define identity")
	}
}

func TestArgumentTypeMismatch(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf(usersArgs{}), nil)
	if _, err := g.Fingerprint(testID, 5); !errors.Is(err, ErrArgumentTypeMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestXXHashAlgorithm(t *testing.T) {
	g := mustGenerator(t, reflect.TypeOf(""), nil, WithAlgorithm(XXHash64))
	fp := mustFingerprint(t, g, testID, "hello")
	if len(fp) != 8 {
		t.Fatalf("expected 8 byte xxhash digest, got %d", len(fp))
	}
	if len(fp.String()) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", fp.String())
	}
}

func TestFileContentDirective(t *testing.T) {
	type args struct {
		Path string `spot:"path"`
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	g := mustGenerator(t, reflect.TypeOf(args{}), Map{"path": FileContent})
	a := mustFingerprint(t, g, testID, args{Path: path})

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	b := mustFingerprint(t, g, testID, args{Path: path})
	if bytes.Equal(a, b) {
		t.Fatalf("expected file content change to change fingerprint")
	}

	copyPath := filepath.Join(dir, "copy.txt")
	if err := os.WriteFile(copyPath, []byte("second"), 0o600); err != nil {
		t.Fatalf("write copy failed: %v", err)
	}
	c := mustFingerprint(t, g, testID, args{Path: copyPath})
	if !bytes.Equal(b, c) {
		t.Fatalf("expected identical contents at different paths to match")
	}

	if _, err := g.Fingerprint(testID, args{Path: filepath.Join(dir, "missing")}); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestPathStatDirective(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	g := mustGenerator(t, reflect.TypeOf(""), Map{"arg": PathStat})
	a := mustFingerprint(t, g, testID, path)

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
	b := mustFingerprint(t, g, testID, path)
	if bytes.Equal(a, b) {
		t.Fatalf("expected mtime change to change fingerprint")
	}
}

func TestFileDirectiveRequiresString(t *testing.T) {
	if _, err := New(reflect.TypeOf(0), Map{"arg": FileContent}); !errors.Is(err, ErrInvalidDirective) {
		t.Fatalf("expected invalid directive, got %v", err)
	}
}
