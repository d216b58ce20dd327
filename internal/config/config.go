// Package config provides configuration loading and validation for the
// Kioku retrieval daemon. Invalid configuration fails at load time, never
// at request time.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucidmem/kioku/internal/models"
)

// ErrInvalid marks configuration that fails validation. Check with errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// Duration wraps time.Duration so YAML values like "2s" parse. Plain
// integers are taken as nanoseconds, matching time.Duration.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or an integer.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	// RulesPath optionally points at a YAML classifier rule table; when
	// empty the built-in rules are used.
	RulesPath string `yaml:"rules_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the memory database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// ConfidenceWeights are the convex weights of the five confidence factors.
// They must sum to exactly 1.0 (validated at load).
type ConfidenceWeights struct {
	SemanticRelevance float64 `yaml:"semantic_relevance"`
	SourceQuality     float64 `yaml:"source_quality"`
	Recency           float64 `yaml:"recency"`
	Consistency       float64 `yaml:"consistency"`
	Completeness      float64 `yaml:"completeness"`
}

// Sum returns the total of all five weights.
func (w ConfidenceWeights) Sum() float64 {
	return w.SemanticRelevance + w.SourceQuality + w.Recency + w.Consistency + w.Completeness
}

// LevelCuts are the lower bounds of the top four confidence levels, in
// descending order: overall >= VeryHigh is very_high, >= High is high,
// >= Medium is medium, >= Low is low, anything below is very_low.
type LevelCuts struct {
	VeryHigh float64 `yaml:"very_high"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

// RetrievalConfig holds fusion, confidence, and cascade settings.
type RetrievalConfig struct {
	// RRFKappa is the smoothing constant in the 1/(rank+kappa) fusion term.
	RRFKappa float64 `yaml:"rrf_kappa"`
	// TopKCandidates is how many hits each layer is asked for per pass.
	TopKCandidates int `yaml:"top_k_candidates"`
	DefaultK       int `yaml:"default_k"`
	MaxK           int `yaml:"max_k"`

	CascadeThreshold float64  `yaml:"cascade_threshold"`
	MaxCascadeDepth  int      `yaml:"max_cascade_depth"`
	LayerTimeout     Duration `yaml:"layer_timeout"`
	Deadline         Duration `yaml:"deadline"`
	RetryBackoff     Duration `yaml:"retry_backoff"`
	WorkerPoolSize   int      `yaml:"worker_pool_size"`

	Weights   ConfidenceWeights `yaml:"confidence_weights"`
	LevelCuts LevelCuts         `yaml:"level_cuts"`
	// QualityBaselines maps every layer to its static source-quality
	// baseline in [0,1].
	QualityBaselines map[models.LayerID]float64 `yaml:"quality_baselines"`
	// PrimaryLayers maps each query type to the layers consulted first.
	PrimaryLayers map[models.QueryType][]models.LayerID `yaml:"primary_layers"`
	// FallbackOrder maps each query type to the cascade escalation order.
	FallbackOrder map[models.QueryType][]models.LayerID `yaml:"fallback_order"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and validates. Returns an error wrapping ErrInvalid when
// validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.RulesPath != "" {
		cfg.RulesPath = expandPath(cfg.RulesPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// weightEpsilon absorbs float noise from YAML round-trips when checking
// that the weights sum to 1.0.
const weightEpsilon = 1e-9

// Validate checks the retrieval configuration. All errors wrap ErrInvalid.
func (c *Config) Validate() error {
	r := &c.Retrieval

	if math.Abs(r.Weights.Sum()-1.0) > weightEpsilon {
		return fmt.Errorf("%w: confidence weights sum to %g, want 1.0", ErrInvalid, r.Weights.Sum())
	}
	for name, v := range map[string]float64{
		"semantic_relevance": r.Weights.SemanticRelevance,
		"source_quality":     r.Weights.SourceQuality,
		"recency":            r.Weights.Recency,
		"consistency":        r.Weights.Consistency,
		"completeness":       r.Weights.Completeness,
	} {
		if v < 0 {
			return fmt.Errorf("%w: confidence weight %s is negative", ErrInvalid, name)
		}
	}

	cuts := []float64{r.LevelCuts.VeryHigh, r.LevelCuts.High, r.LevelCuts.Medium, r.LevelCuts.Low}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] >= cuts[i-1] {
			return fmt.Errorf("%w: level cuts must be strictly descending", ErrInvalid)
		}
	}
	if cuts[0] > 1 || cuts[len(cuts)-1] < 0 {
		return fmt.Errorf("%w: level cuts must lie in [0,1]", ErrInvalid)
	}

	if r.CascadeThreshold < 0 || r.CascadeThreshold > 1 {
		return fmt.Errorf("%w: cascade_threshold %g outside [0,1]", ErrInvalid, r.CascadeThreshold)
	}
	if r.MaxCascadeDepth < 0 {
		return fmt.Errorf("%w: max_cascade_depth cannot be negative", ErrInvalid)
	}
	if r.RRFKappa <= 0 {
		return fmt.Errorf("%w: rrf_kappa must be positive", ErrInvalid)
	}
	if r.LayerTimeout <= 0 || r.Deadline <= 0 {
		return fmt.Errorf("%w: layer_timeout and deadline must be positive", ErrInvalid)
	}
	if r.LayerTimeout > r.Deadline {
		return fmt.Errorf("%w: layer_timeout exceeds overall deadline", ErrInvalid)
	}
	if r.WorkerPoolSize <= 0 {
		return fmt.Errorf("%w: worker_pool_size must be positive", ErrInvalid)
	}

	for _, l := range models.AllLayers {
		q, ok := r.QualityBaselines[l]
		if !ok {
			return fmt.Errorf("%w: missing quality baseline for layer %q", ErrInvalid, l)
		}
		if q < 0 || q > 1 {
			return fmt.Errorf("%w: quality baseline for layer %q outside [0,1]", ErrInvalid, l)
		}
	}
	for l := range r.QualityBaselines {
		if !models.KnownLayer(l) {
			return fmt.Errorf("%w: unknown layer %q in quality_baselines", ErrInvalid, l)
		}
	}

	for qt, layers := range r.PrimaryLayers {
		if err := checkLayerList("primary_layers", qt, layers); err != nil {
			return err
		}
		if len(layers) == 0 {
			return fmt.Errorf("%w: primary_layers for %q is empty", ErrInvalid, qt)
		}
	}
	for qt, layers := range r.FallbackOrder {
		if err := checkLayerList("fallback_order", qt, layers); err != nil {
			return err
		}
	}
	for _, qt := range models.AllQueryTypes {
		if _, ok := r.PrimaryLayers[qt]; !ok {
			return fmt.Errorf("%w: missing primary_layers for query type %q", ErrInvalid, qt)
		}
	}

	return nil
}

func checkLayerList(section string, qt models.QueryType, layers []models.LayerID) error {
	if !knownQueryType(qt) {
		return fmt.Errorf("%w: unknown query type %q in %s", ErrInvalid, qt, section)
	}
	seen := make(map[models.LayerID]bool)
	for _, l := range layers {
		if !models.KnownLayer(l) {
			return fmt.Errorf("%w: unknown layer %q in %s[%s]", ErrInvalid, l, section, qt)
		}
		if seen[l] {
			return fmt.Errorf("%w: duplicate layer %q in %s[%s]", ErrInvalid, l, section, qt)
		}
		seen[l] = true
	}
	return nil
}

func knownQueryType(qt models.QueryType) bool {
	for _, t := range models.AllQueryTypes {
		if t == qt {
			return true
		}
	}
	return false
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
