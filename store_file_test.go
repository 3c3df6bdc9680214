package spot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/goforj/spot/cachetest"
)

func newTestFileStore(t *testing.T, ttl time.Duration) (*fileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := newFileStore(dir, ttl)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return store.(*fileStore), dir
}

func TestFileStoreContract(t *testing.T) {
	store, _ := newTestFileStore(t, 0)
	cachetest.RunStoreContract(t, store, cachetest.Options{})
}

func TestFileStoreRecordLayout(t *testing.T) {
	store, _ := newTestFileStore(t, 0)
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("payload"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	data, err := os.ReadFile(store.path("k"))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	expiresAt, value, err := decodeFileRecord(data)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if expiresAt != 0 || string(value) != "payload" {
		t.Fatalf("unexpected record: expires=%d value=%q", expiresAt, value)
	}
}

func TestFileStoreCorruptRecordIsRemoved(t *testing.T) {
	store, _ := newTestFileStore(t, 0)
	path := store.path("k")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "k"); !errors.Is(err, errCorruptFileRecord) {
		t.Fatalf("expected corrupt record error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt record removed, stat err=%v", err)
	}
}

func TestFileStoreFlushLeavesForeignFiles(t *testing.T) {
	store, dir := newTestFileStore(t, 0)
	ctx := context.Background()
	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write foreign: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("expected foreign file kept: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected entry flushed")
	}
}

func TestFileStoreWriteFailuresCleanUp(t *testing.T) {
	store, dir := newTestFileStore(t, 0)
	ctx := context.Background()

	origRename := renameFile
	t.Cleanup(func() { renameFile = origRename })
	renameFile = func(string, string) error { return errors.New("rename refused") }

	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected rename failure")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp file cleaned up, found %d entries", len(entries))
	}

	renameFile = origRename
	origCreate := createTempFile
	t.Cleanup(func() { createTempFile = origCreate })
	createTempFile = func(string, string) (*os.File, error) { return nil, errors.New("disk full") }
	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected create failure")
	}
}

func TestFileStoreDefaultTTL(t *testing.T) {
	store, _ := newTestFileStore(t, 20*time.Millisecond)
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expiry from default ttl, ok=%v err=%v", ok, err)
	}
}
