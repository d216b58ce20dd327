package config

import (
	"time"

	"github.com/lucidmem/kioku/internal/models"
)

// ApplyDefaults sets default values for any zero values in cfg.
// The numeric defaults here are tuning starting points, not contracts;
// deployments override them in config.yaml.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kioku/data/db/memories.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kioku/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kioku/data/indices/vectors.bin"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	r := &cfg.Retrieval
	if r.RRFKappa == 0 {
		r.RRFKappa = 60
	}
	if r.TopKCandidates == 0 {
		r.TopKCandidates = 50
	}
	if r.DefaultK == 0 {
		r.DefaultK = 10
	}
	if r.MaxK == 0 {
		r.MaxK = 100
	}
	if r.CascadeThreshold == 0 {
		r.CascadeThreshold = 0.5
	}
	if r.MaxCascadeDepth == 0 {
		r.MaxCascadeDepth = 3
	}
	if r.LayerTimeout == 0 {
		r.LayerTimeout = Duration(2 * time.Second)
	}
	if r.Deadline == 0 {
		r.Deadline = Duration(10 * time.Second)
	}
	if r.RetryBackoff == 0 {
		r.RetryBackoff = Duration(100 * time.Millisecond)
	}
	if r.WorkerPoolSize == 0 {
		r.WorkerPoolSize = 4
	}
	if r.Weights == (ConfidenceWeights{}) {
		r.Weights = ConfidenceWeights{
			SemanticRelevance: 0.35,
			SourceQuality:     0.25,
			Recency:           0.15,
			Consistency:       0.15,
			Completeness:      0.10,
		}
	}
	if r.LevelCuts == (LevelCuts{}) {
		r.LevelCuts = LevelCuts{VeryHigh: 0.85, High: 0.70, Medium: 0.50, Low: 0.30}
	}
	if r.QualityBaselines == nil {
		// Episodic starts highest: events describe things that already
		// happened and are the most verifiable. Prospective is lowest:
		// forward-looking tasks may never happen.
		r.QualityBaselines = map[models.LayerID]float64{
			models.LayerEpisodic:    0.85,
			models.LayerSemantic:    0.80,
			models.LayerLexical:     0.75,
			models.LayerProcedural:  0.80,
			models.LayerProspective: 0.60,
			models.LayerGraph:       0.75,
			models.LayerMeta:        0.70,
		}
	}
	if r.PrimaryLayers == nil {
		r.PrimaryLayers = map[models.QueryType][]models.LayerID{
			models.QueryTemporal:    {models.LayerEpisodic},
			models.QueryRelational:  {models.LayerGraph},
			models.QueryPlanning:    {models.LayerProcedural, models.LayerSemantic},
			models.QueryProcedural:  {models.LayerProcedural},
			models.QueryProspective: {models.LayerProspective},
			models.QueryMeta:        {models.LayerMeta},
			models.QueryFactual:     {models.LayerSemantic, models.LayerLexical},
		}
	}
	if r.FallbackOrder == nil {
		r.FallbackOrder = map[models.QueryType][]models.LayerID{
			models.QueryTemporal:    {models.LayerSemantic, models.LayerLexical, models.LayerGraph},
			models.QueryRelational:  {models.LayerSemantic, models.LayerEpisodic},
			models.QueryPlanning:    {models.LayerGraph, models.LayerEpisodic},
			models.QueryProcedural:  {models.LayerSemantic, models.LayerEpisodic},
			models.QueryProspective: {models.LayerEpisodic, models.LayerSemantic},
			models.QueryMeta:        {models.LayerSemantic},
			models.QueryFactual:     {models.LayerEpisodic, models.LayerGraph, models.LayerProcedural},
		}
	}
}

// Default returns a fully defaulted, valid configuration. Used by tests
// and by the server when no config file is given.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
