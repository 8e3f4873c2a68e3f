package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the embreduce tool.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Cache     CacheConfig     `yaml:"cache"`
	Engine    EngineConfig    `yaml:"engine"`
	Search    SearchConfig    `yaml:"search"`
	Random    RandomConfig    `yaml:"random"`
	Quant     QuantConfig     `yaml:"quant"`
	Proposed  ProposedConfig  `yaml:"proposed"`
	Heatmap   HeatmapConfig   `yaml:"heatmap"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatasetConfig holds the two dataset complexity classes.
type DatasetConfig struct {
	Easy DatasetPaths `yaml:"easy"` // LFW
	Hard DatasetPaths `yaml:"hard"` // CPLFW
}

// DatasetPaths locates a dataset's image root and pairs file.
type DatasetPaths struct {
	Root      string   `yaml:"root"`
	PairsFile string   `yaml:"pairs_file"`
	Includes  []string `yaml:"includes"` // image globs used by the cache action
}

// ExtractorConfig configures the external embedding extractor.
type ExtractorConfig struct {
	Provider  string        `yaml:"provider"` // "command", "http", "mock"
	Command   []string      `yaml:"command"`  // argv; the image path is appended
	URL       string        `yaml:"url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	Normalize bool          `yaml:"normalize"` // L2-normalize extracted embeddings
}

// CacheConfig holds embedding cache configuration.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// EngineConfig holds evaluation engine configuration.
type EngineConfig struct {
	Workers int    `yaml:"workers"` // 0 = GOMAXPROCS
	Metric  string `yaml:"metric"`  // "euclidean" or "cosine"
	Curve   bool   `yaml:"curve"`   // include the FAR/FRR curve in results
}

// SearchConfig bounds the best-subset searches.
type SearchConfig struct {
	MaxEvaluations int64 `yaml:"max_evaluations"`
	Pool           int   `yaml:"pool"`            // restrict candidates to the first N dims (0 = all)
	StopOnPlateau  bool  `yaml:"stop_on_plateau"` // greedy may then return fewer than k dims
}

// RandomConfig configures random dimension sampling.
type RandomConfig struct {
	Seed     uint64 `yaml:"seed"`
	Trials   int    `yaml:"trials"`
	Resample bool   `yaml:"resample"` // random-dimensions-full samples per trial
}

// QuantConfig configures quantization.
type QuantConfig struct {
	Mode        string `yaml:"mode"` // "per-dimension" or "global"
	SweepScales bool   `yaml:"sweep_scales"`
	MaxScale    int    `yaml:"max_scale"`
}

// ProposedConfig configures the select-then-quantize pipeline.
type ProposedConfig struct {
	Dims       int   `yaml:"dims"`
	Bits       int   `yaml:"bits"`
	Dimensions []int `yaml:"dimensions"` // fixed selection; skips the greedy search
}

// HeatmapConfig configures the importance profiler.
type HeatmapConfig struct {
	Mode string `yaml:"mode"` // "ablation", "single", "separation"
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	Format    string `yaml:"format"` // "csv" or "json"
	ExportDir string `yaml:"export_dir"`
	Compress  bool   `yaml:"compress"` // zstd exports
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Easy: DatasetPaths{
				PairsFile: "data/lfw-pairs.txt",
				Includes:  []string{"**/*.jpg", "**/*.png"},
			},
			Hard: DatasetPaths{
				PairsFile: "data/pairs_CPLFW.txt",
				Includes:  []string{"**/*.jpg", "**/*.png"},
			},
		},
		Extractor: ExtractorConfig{
			Provider:  "command",
			APIKeyEnv: "EMBREDUCE_API_KEY",
			Model:     "arcface",
			Dimension: 512,
			Timeout:   60 * time.Second,
			Retries:   2,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "data",
		},
		Engine: EngineConfig{
			Metric: "euclidean",
		},
		Search: SearchConfig{
			MaxEvaluations: 10_000_000,
		},
		Random: RandomConfig{
			Seed:   1,
			Trials: 100,
		},
		Quant: QuantConfig{
			Mode:     "per-dimension",
			MaxScale: 199,
		},
		Proposed: ProposedConfig{
			Dims: 70,
			Bits: 8,
		},
		Heatmap: HeatmapConfig{
			Mode: "ablation",
		},
		Output: OutputConfig{
			Format:    "csv",
			ExportDir: ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for embreduce.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "embreduce.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".embreduce", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Paths returns the dataset paths for a complexity class name.
func (c *Config) Paths(class string) (DatasetPaths, error) {
	switch class {
	case "easy":
		return c.Dataset.Easy, nil
	case "hard":
		return c.Dataset.Hard, nil
	default:
		return DatasetPaths{}, fmt.Errorf("unknown dataset %q, possible values: easy, hard", class)
	}
}

// CacheDBPath returns the path of the embedding cache for a dataset.
func CacheDBPath(dir, dataset string) string {
	return filepath.Join(dir, fmt.Sprintf("cache-%s.db", dataset))
}

// EnsureCacheDir ensures the cache directory exists.
func EnsureCacheDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
