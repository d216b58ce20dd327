package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = idx.Add(ctx, "x", []float32{1, 0, 0})
	_ = idx.Add(ctx, "y", []float32{0, 1, 0})
	_ = idx.Add(ctx, "near-x", []float32{0.9, 0.1, 0})

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "x" {
		t.Errorf("best match = %s, want x", results[0].ID)
	}
	if results[1].ID != "near-x" {
		t.Errorf("second match = %s, want near-x", results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be sorted by score descending")
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Add(ctx, "x", []float32{1, 0}); err == nil {
		t.Error("expected error for wrong-dimension add")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected error for wrong-dimension query")
	}
}

func TestMemoryIndex_Upsert(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "x", []float32{1, 0})
	_ = idx.Add(ctx, "x", []float32{0, 1})
	if idx.Size() != 1 {
		t.Fatalf("upsert should not grow the index, size = %d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{0, 1}, 1)
	if results[0].Score < 0.99 {
		t.Errorf("x should hold the replacement vector, score = %v", results[0].Score)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "a", []float32{1, 0})
	_ = idx.Add(ctx, "b", []float32{0, 1})
	_ = idx.Add(ctx, "c", []float32{1, 1})

	if err := idx.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("size after remove = %d, want 2", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 3)
	for _, r := range results {
		if r.ID == "a" {
			t.Error("removed id still in search results")
		}
	}
	// Remaining entries survive the swap-with-last compaction.
	results, _ = idx.Search(ctx, []float32{0, 1}, 1)
	if results[0].ID != "c" && results[0].ID != "b" {
		t.Errorf("unexpected best match %s", results[0].ID)
	}

	// Removing an absent id is a no-op.
	if err := idx.Remove(ctx, "ghost"); err != nil {
		t.Errorf("removing absent id: %v", err)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, "a", []float32{0.5, 0.5})
	_ = idx.Add(ctx, "b", []float32{1, 0})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size = %d, want 2", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{1, 0}, 1)
	if results[0].ID != "b" {
		t.Errorf("best match after reload = %s, want b", results[0].ID)
	}
}

func TestMemoryIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.bin")); err != nil {
		t.Errorf("missing snapshot should not be an error: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d, want 0", idx.Size())
	}
}

func TestMemoryIndex_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	idx, _ := NewMemoryIndex(3)
	_ = idx.Add(context.Background(), "a", []float32{1, 0, 0})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewMemoryIndex(4)
	if err := other.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
