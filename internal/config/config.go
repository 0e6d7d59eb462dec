package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Model       ModelConfig       `yaml:"model"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
	Storage     StorageConfig     `yaml:"storage"`
}

// ModelConfig selects and configures the execution provider that serves the
// model under evaluation.
type ModelConfig struct {
	Provider string `yaml:"provider,omitempty"` // "openai" or "anthropic"
	Name     string `yaml:"name,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`

	// MaxInputLength bounds rendered contexts; zero disables the check.
	MaxInputLength int `yaml:"max_input_length,omitempty"`
}

type EvaluationConfig struct {
	BatchSize  int    `yaml:"batch_size,omitempty"` // per-device batch size
	MaxSamples int    `yaml:"max_samples,omitempty"`
	DataDir    string `yaml:"data_dir,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`
}

// ParallelismConfig holds requested degrees; zero means unset.
type ParallelismConfig struct {
	DataParallel       int  `yaml:"data_parallel,omitempty"`
	TensorParallel     int  `yaml:"tensor_parallel,omitempty"`
	PipelineParallel   int  `yaml:"pipeline_parallel,omitempty"`
	AllowModelParallel bool `yaml:"allow_model_parallel,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Model.Provider) == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Evaluation.BatchSize <= 0 {
		cfg.Evaluation.BatchSize = 8
	}
	if strings.TrimSpace(cfg.Evaluation.DataDir) == "" {
		cfg.Evaluation.DataDir = "data"
	}
	if strings.TrimSpace(cfg.Evaluation.OutputDir) == "" {
		cfg.Evaluation.OutputDir = "results"
	}
}

func applyEnv(cfg *Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.Model.Provider)) {
	case "anthropic", "claude":
		if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
			cfg.Model.APIKey = v
		}
	default:
		if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
			cfg.Model.APIKey = v
		}
	}
}
