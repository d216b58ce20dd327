package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/classifier"
	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/confidence"
	"github.com/lucidmem/kioku/internal/embedding"
	"github.com/lucidmem/kioku/internal/fusion"
	"github.com/lucidmem/kioku/internal/ingest"
	"github.com/lucidmem/kioku/internal/keyword"
	"github.com/lucidmem/kioku/internal/layer"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/orchestrator"
	"github.com/lucidmem/kioku/internal/store"
	"github.com/lucidmem/kioku/internal/vector"
)

// newTestServer wires a full stack against temporary storage.
func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()
	cfg := config.Default()

	st, err := store.Open(filepath.Join(dir, "memories.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	embedder := embedding.NewHashEmbedder(32)
	vecIdx, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })

	meta := layer.NewMeta(st)
	adapters := map[models.LayerID]layer.Adapter{
		models.LayerEpisodic:    layer.NewEpisodic(st),
		models.LayerSemantic:    layer.NewSemantic(embedder, vecIdx, st),
		models.LayerLexical:     layer.NewLexical(kwIdx, st),
		models.LayerProcedural:  layer.NewProcedural(st),
		models.LayerProspective: layer.NewProspective(st),
		models.LayerGraph:       layer.NewGraph(st),
		models.LayerMeta:        meta,
	}
	orch := orchestrator.New(
		classifier.New(classifier.DefaultRules()),
		adapters,
		fusion.NewEngine(cfg.Retrieval.RRFKappa),
		confidence.NewScorer(&cfg.Retrieval, meta.DomainExpertise),
		&cfg.Retrieval,
		logger,
	)
	ingestor := ingest.New(st, embedder, vecIdx, kwIdx, logger)
	srv := NewServer(orch, ingestor, st, &cfg.Server, logger)
	return srv, srv.routes()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleRememberAndRetrieve(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/v1/memories", &models.MemoryInput{
		Layer:   models.LayerSemantic,
		Content: "the payments service retries failed charges with exponential backoff",
		Tags:    []string{"payments"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("remember status = %d, body %s", w.Code, w.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created["id"] == "" {
		t.Fatal("no id returned")
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/retrieve", map[string]interface{}{
		"text": "payments retries backoff",
		"k":    5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("retrieve status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.RetrievalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults() == 0 {
		t.Fatal("expected at least one result")
	}
	if resp.Explanation == nil {
		t.Fatal("explanation should default on")
	}
	if resp.Explanation.QueryType != models.QueryFactual {
		t.Errorf("query type = %s, want factual", resp.Explanation.QueryType)
	}
	if resp.RequestID == "" {
		t.Error("request id not set")
	}
}

func TestHandleRetrieve_badBody(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRetrieve_emptyText(t *testing.T) {
	_, h := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/v1/retrieve", map[string]interface{}{"text": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRemember_unknownLayer(t *testing.T) {
	_, h := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/v1/memories", map[string]interface{}{
		"layer": "holographic", "content": "x",
	})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandleGetAndForget(t *testing.T) {
	_, h := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/v1/memories", &models.MemoryInput{
		Layer: models.LayerEpisodic, Content: "deployed at noon",
	})
	var created map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	id := created["id"]

	w = doJSON(t, h, http.MethodGet, "/api/v1/memories/episodic/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/memories/episodic/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("forget status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/memories/episodic/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after forget status = %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, h := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/memories", &models.MemoryInput{
		Layer: models.LayerEpisodic, Content: "an event",
	})

	w := doJSON(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status struct {
		Status string                 `json:"status"`
		Layers map[models.LayerID]int `json:"layers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ok" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Layers[models.LayerEpisodic] != 1 {
		t.Errorf("episodic count = %d, want 1", status.Layers[models.LayerEpisodic])
	}
}
