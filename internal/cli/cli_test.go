package cli

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/goforj/spot"
	"github.com/goforj/spot/serializer"
)

func seedEntry(t *testing.T, dir, key string, ser serializer.Serializer, code uint32, version string) {
	t.Helper()
	ctx := context.Background()
	store, err := spot.NewFileStore(ctx, dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	body, err := ser.MarshalBody(version, map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	entry, err := ser.Serialize(serializer.Envelope{Code: code, Payload: body})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if err := store.Set(ctx, key, entry, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestInspect(t *testing.T) {
	t.Setenv("SPOT_DRIVER", "")
	tests := []struct {
		name    string
		ser     serializer.Serializer
		code    uint32
		version string
	}{
		{name: "json", ser: serializer.JSON(), code: 10, version: "v1"},
		{name: "msgpack", ser: serializer.MsgPack(), code: 300, version: "v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			seedEntry(t, dir, "abc123", tt.ser, tt.code, tt.version)

			code, out, stderr := run(t, "inspect", "--driver", "file", "--file-dir", dir, "abc123")
			if code != ExitSuccess {
				t.Fatalf("exit = %d, stderr = %s", code, stderr)
			}
			for _, want := range []string{
				"driver:      file",
				"type code:   " + strconv.FormatUint(uint64(tt.code), 10),
				"serializer:  " + tt.name,
				"version:     " + tt.version,
			} {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestInspectMissing(t *testing.T) {
	t.Setenv("SPOT_DRIVER", "")
	code, _, _ := run(t, "inspect", "--driver", "file", "--file-dir", t.TempDir(), "nope")
	if code != ExitNotFound {
		t.Fatalf("exit = %d, want %d", code, ExitNotFound)
	}
}

func TestDeleteAndFlush(t *testing.T) {
	t.Setenv("SPOT_DRIVER", "")
	dir := t.TempDir()
	for _, key := range []string{"a", "b", "c"} {
		seedEntry(t, dir, key, serializer.JSON(), 10, "v1")
	}

	code, out, stderr := run(t, "delete", "--driver", "file", "--file-dir", dir, "a", "b")
	if code != ExitSuccess {
		t.Fatalf("delete exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, "deleted 2 entries") {
		t.Fatalf("delete output = %q", out)
	}
	if code, _, _ := run(t, "inspect", "--driver", "file", "--file-dir", dir, "a"); code != ExitNotFound {
		t.Fatalf("deleted entry still present, exit = %d", code)
	}
	if code, _, _ := run(t, "inspect", "--driver", "file", "--file-dir", dir, "c"); code != ExitSuccess {
		t.Fatalf("untouched entry missing, exit = %d", code)
	}

	if code, _, _ := run(t, "flush", "--driver", "file", "--file-dir", dir); code != ExitUsageError {
		t.Fatalf("flush without --yes exit = %d, want %d", code, ExitUsageError)
	}
	if code, _, stderr := run(t, "flush", "--yes", "--driver", "file", "--file-dir", dir); code != ExitSuccess {
		t.Fatalf("flush exit = %d, stderr = %s", code, stderr)
	}
	if code, _, _ := run(t, "inspect", "--driver", "file", "--file-dir", dir, "c"); code != ExitNotFound {
		t.Fatalf("flushed entry still present, exit = %d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	t.Setenv("SPOT_DRIVER", "")
	tests := []struct {
		name string
		args []string
	}{
		{name: "no driver", args: []string{"delete", "k"}},
		{name: "bad driver", args: []string{"delete", "--driver", "bogus", "k"}},
		{name: "missing fingerprint", args: []string{"inspect", "--driver", "memory"}},
		{name: "unknown flag", args: []string{"inspect", "--nope", "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := run(t, tt.args...); code != ExitUsageError {
				t.Fatalf("exit = %d, want %d", code, ExitUsageError)
			}
		})
	}
}

func TestEnvSelectsStore(t *testing.T) {
	dir := t.TempDir()
	seedEntry(t, dir, "k", serializer.JSON(), 10, "v1")

	t.Setenv("SPOT_DRIVER", "file")
	t.Setenv("SPOT_FILE_DIR", dir)
	if code, _, stderr := run(t, "inspect", "k"); code != ExitSuccess {
		t.Fatalf("env-configured inspect exit = %d, stderr = %s", code, stderr)
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "version")
	if code != ExitSuccess || !strings.Contains(out, version) {
		t.Fatalf("version exit = %d, output = %q", code, out)
	}
}
