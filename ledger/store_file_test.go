package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileStoreRequiresRoot(t *testing.T) {
	if _, err := NewFileStore(""); err != ErrNoRoot {
		t.Errorf("Expected ErrNoRoot, got %v", err)
	}
}

func TestFileStoreMarkers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}

	key := Hash("txn-1")
	ok, err := store.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Expected missing marker, got %v, %v", ok, err)
	}

	if err := store.Put(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, key); err != nil {
		t.Fatalf("Expected rewrite to succeed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "purchasing", "transactions", key)); err != nil {
		t.Errorf("Expected marker file on disk: %v", err)
	}

	ok, err = store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Expected marker, got %v, %v", ok, err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	ok, _ = store.Exists(ctx, key)
	if ok {
		t.Error("Expected marker to be gone after Clear")
	}
}

func TestFileStoreHonorsCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Put(ctx, "X"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
