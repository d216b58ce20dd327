// Package ingest is the write path for memory records: it stores the
// record and keeps the semantic and lexical indices in step with the
// fact table. The retrieval core never writes; only this package does,
// on behalf of the external consolidation service that decides what to
// store.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/embedding"
	"github.com/lucidmem/kioku/internal/keyword"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
	"github.com/lucidmem/kioku/internal/vector"
)

// Ingestor writes memory records and maintains the fact indices.
type Ingestor struct {
	store    *store.SQLite
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index
	logger   *zap.Logger
}

// New creates an ingestor.
func New(s *store.SQLite, e embedding.Embedder, v vector.Index, k keyword.Index, logger *zap.Logger) *Ingestor {
	return &Ingestor{store: s, embedder: e, vectors: v, keywords: k, logger: logger}
}

// Remember stores one memory record and returns its ID. Facts are also
// embedded into the vector index and indexed for keyword search.
func (g *Ingestor) Remember(ctx context.Context, in *models.MemoryInput) (string, error) {
	if !models.KnownLayer(in.Layer) {
		return "", fmt.Errorf("unknown layer: %s", in.Layer)
	}
	if in.Content == "" {
		return "", fmt.Errorf("memory content cannot be empty")
	}

	id, err := g.store.Insert(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}

	if models.FactLayer(in.Layer) {
		if err := g.indexFact(ctx, id, in); err != nil {
			// The row exists; a stale index beats a lost memory. Surface
			// the failure so the caller can trigger a rebuild.
			return id, fmt.Errorf("memory %s stored but indexing failed: %w", id, err)
		}
	}

	g.logger.Debug("memory stored", zap.String("layer", string(in.Layer)), zap.String("id", id))
	return id, nil
}

func (g *Ingestor) indexFact(ctx context.Context, id string, in *models.MemoryInput) error {
	emb, err := g.embedder.Embed(ctx, in.Content)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	if err := g.vectors.Add(ctx, id, emb); err != nil {
		return fmt.Errorf("vector index failed: %w", err)
	}
	fields := &keyword.Fields{Content: in.Content, Tags: joinTags(in.Tags)}
	if err := g.keywords.Index(ctx, id, fields); err != nil {
		return fmt.Errorf("keyword index failed: %w", err)
	}
	return nil
}

// Forget removes one record from a layer's store and, for facts, from
// both indices.
func (g *Ingestor) Forget(ctx context.Context, layerID models.LayerID, id string) error {
	if err := g.store.Delete(ctx, layerID, id); err != nil {
		return err
	}
	if models.FactLayer(layerID) {
		if err := g.vectors.Remove(ctx, id); err != nil {
			return fmt.Errorf("vector removal failed: %w", err)
		}
		if err := g.keywords.Delete(ctx, id); err != nil {
			return fmt.Errorf("keyword removal failed: %w", err)
		}
	}
	return nil
}

// Rebuild re-embeds and re-indexes every fact. Used at startup when the
// vector index file is missing or after an indexing failure.
func (g *Ingestor) Rebuild(ctx context.Context) error {
	facts, err := g.store.ListFacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list facts: %w", err)
	}
	for _, f := range facts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emb, err := g.embedder.Embed(ctx, f.Content)
		if err != nil {
			return fmt.Errorf("embedding fact %s: %w", f.ID, err)
		}
		if err := g.vectors.Add(ctx, f.ID, emb); err != nil {
			return fmt.Errorf("indexing fact %s: %w", f.ID, err)
		}
		fields := &keyword.Fields{Content: f.Content, Tags: joinTags(f.Tags)}
		if err := g.keywords.Index(ctx, f.ID, fields); err != nil {
			return fmt.Errorf("keyword indexing fact %s: %w", f.ID, err)
		}
	}
	g.logger.Info("fact indices rebuilt", zap.Int("facts", len(facts)))
	return nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
