package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recording-pipeline/constant"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, Options{Driver: constant.StorageDriverLocal, Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(src, []byte("mp4 bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	key := "oitivas/2026/10/abc.mp4"
	if err := PutFile(ctx, store, key, src, "video/mp4"); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	dst := filepath.Join(t.TempDir(), "nested", "copy.mp4")
	n, err := GetFile(ctx, store, key, dst)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if n != 9 || string(got) != "mp4 bytes" {
		t.Fatalf("unexpected copy %d %q", n, got)
	}

	link, err := store.Presign(ctx, key, 0)
	if err != nil || !strings.HasPrefix(link, "file://") {
		t.Fatalf("Presign = %q, %v", link, err)
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := store.Put(context.Background(), "../escape", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), Options{Driver: "ftp"}); err == nil {
		t.Fatal("expected error")
	}
}
