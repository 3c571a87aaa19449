package fabric

import (
	"errors"
	"testing"
)

func TestMemoryKVStore_GetMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryKVStore()
	_, err := store.Get("missing")
	if !errors.Is(err, ErrStorageNotFound) {
		t.Errorf("expected ErrStorageNotFound, got %v", err)
	}
}

func TestMemoryKVStore_SetGetDelete(t *testing.T) {
	store := NewMemoryKVStore()

	if err := store.Set("k", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("expected %q, got %q", "v1", got)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrStorageNotFound) {
		t.Errorf("expected ErrStorageNotFound after delete, got %v", err)
	}
}

func TestMemoryKVStore_GetReturnsIndependentCopy(t *testing.T) {
	store := NewMemoryKVStore()
	original := []byte("value")
	if err := store.Set("k", original); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got[0] = 'X'

	again, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(again) != "value" {
		t.Errorf("mutating a returned slice affected stored state: got %q", again)
	}

	original[0] = 'Y'
	third, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(third) != "value" {
		t.Errorf("mutating the caller's slice after Set affected stored state: got %q", third)
	}
}

func TestMemoryKVStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := NewMemoryKVStore()
	if err := store.Delete("never-set"); err != nil {
		t.Errorf("deleting an absent key should not error, got %v", err)
	}
}

func TestStorageKeyHelpers(t *testing.T) {
	if got, want := fabricMetadataKey(3), "FabricMetadata/3"; got != want {
		t.Errorf("fabricMetadataKey(3) = %q, want %q", got, want)
	}
	if fabricIndexInfoKey != "FabricIndexInfo" {
		t.Errorf("unexpected fabricIndexInfoKey: %q", fabricIndexInfoKey)
	}
	if fabricCommitMarkerKey != "FabricCommitMarker" {
		t.Errorf("unexpected fabricCommitMarkerKey: %q", fabricCommitMarkerKey)
	}
}
