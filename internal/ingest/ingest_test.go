package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/embedding"
	"github.com/lucidmem/kioku/internal/keyword"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
	"github.com/lucidmem/kioku/internal/vector"
)

func newTestIngestor(t *testing.T) (*Ingestor, *store.SQLite, *vector.MemoryIndex, *keyword.BleveIndex) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	vecIdx, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })
	g := New(st, embedding.NewHashEmbedder(32), vecIdx, kwIdx, zap.NewNop())
	return g, st, vecIdx, kwIdx
}

func TestRemember_factIndexesBothWays(t *testing.T) {
	g, st, vecIdx, kwIdx := newTestIngestor(t)
	ctx := context.Background()

	id, err := g.Remember(ctx, &models.MemoryInput{
		Layer:   models.LayerSemantic,
		Content: "the api gateway fronts all services",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetFact(ctx, id); err != nil {
		t.Fatalf("fact row missing: %v", err)
	}
	if vecIdx.Size() != 1 {
		t.Errorf("vector index size = %d, want 1", vecIdx.Size())
	}
	if n, _ := kwIdx.Count(); n != 1 {
		t.Errorf("keyword index count = %d, want 1", n)
	}
}

func TestRemember_nonFactSkipsIndices(t *testing.T) {
	g, _, vecIdx, kwIdx := newTestIngestor(t)
	if _, err := g.Remember(context.Background(), &models.MemoryInput{
		Layer:   models.LayerEpisodic,
		Content: "deployed at noon",
	}); err != nil {
		t.Fatal(err)
	}
	if vecIdx.Size() != 0 {
		t.Errorf("episodic records must not hit the vector index, size = %d", vecIdx.Size())
	}
	if n, _ := kwIdx.Count(); n != 0 {
		t.Errorf("episodic records must not hit the keyword index, count = %d", n)
	}
}

func TestRemember_validation(t *testing.T) {
	g, _, _, _ := newTestIngestor(t)
	ctx := context.Background()
	if _, err := g.Remember(ctx, &models.MemoryInput{Layer: "holographic", Content: "x"}); err == nil {
		t.Error("unknown layer should be rejected")
	}
	if _, err := g.Remember(ctx, &models.MemoryInput{Layer: models.LayerSemantic}); err == nil {
		t.Error("empty content should be rejected")
	}
}

func TestForget_removesRowAndIndices(t *testing.T) {
	g, st, vecIdx, kwIdx := newTestIngestor(t)
	ctx := context.Background()

	id, err := g.Remember(ctx, &models.MemoryInput{
		Layer:   models.LayerLexical,
		Content: "short-lived note",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Forget(ctx, models.LayerLexical, id); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetFact(ctx, id); err == nil {
		t.Error("fact row should be gone")
	}
	if vecIdx.Size() != 0 {
		t.Errorf("vector index size = %d, want 0", vecIdx.Size())
	}
	if n, _ := kwIdx.Count(); n != 0 {
		t.Errorf("keyword index count = %d, want 0", n)
	}
}

func TestForget_missingRecord(t *testing.T) {
	g, _, _, _ := newTestIngestor(t)
	if err := g.Forget(context.Background(), models.LayerSemantic, "nope"); err == nil {
		t.Error("forgetting a missing record should fail")
	}
}

func TestRebuild(t *testing.T) {
	g, st, _, _ := newTestIngestor(t)
	ctx := context.Background()

	// Rows written behind the ingestor's back, as after an index loss.
	for _, content := range []string{"first fact", "second fact", "third fact"} {
		if _, err := st.Insert(ctx, &models.MemoryInput{Layer: models.LayerSemantic, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	// Fresh indices simulate a missing snapshot.
	vecIdx, _ := vector.NewMemoryIndex(32)
	kwIdx, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer kwIdx.Close()
	g = New(st, embedding.NewHashEmbedder(32), vecIdx, kwIdx, zap.NewNop())

	if err := g.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if vecIdx.Size() != 3 {
		t.Errorf("vector index size = %d, want 3", vecIdx.Size())
	}
	if n, _ := kwIdx.Count(); n != 3 {
		t.Errorf("keyword index count = %d, want 3", n)
	}
}
