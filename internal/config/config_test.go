package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
model:
  provider: openai
  name: gpt-4o-mini
  api_key: from-file
  max_input_length: 4000
evaluation:
  batch_size: 16
  max_samples: 50
parallelism:
  data_parallel: 4
storage:
  type: sqlite
  path: /tmp/eval.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Name != "gpt-4o-mini" || cfg.Model.APIKey != "from-file" {
		t.Fatalf("model: got %+v", cfg.Model)
	}
	if cfg.Model.MaxInputLength != 4000 {
		t.Fatalf("max input length: got %d", cfg.Model.MaxInputLength)
	}
	if cfg.Evaluation.BatchSize != 16 || cfg.Evaluation.MaxSamples != 50 {
		t.Fatalf("evaluation: got %+v", cfg.Evaluation)
	}
	if cfg.Parallelism.DataParallel != 4 {
		t.Fatalf("parallelism: got %+v", cfg.Parallelism)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.Path != "/tmp/eval.db" {
		t.Fatalf("storage: got %+v", cfg.Storage)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(writeConfig(t, "model:\n  name: m\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Provider != "openai" {
		t.Fatalf("provider default: got %q", cfg.Model.Provider)
	}
	if cfg.Evaluation.BatchSize != 8 {
		t.Fatalf("batch size default: got %d", cfg.Evaluation.BatchSize)
	}
	if cfg.Evaluation.DataDir != "data" || cfg.Evaluation.OutputDir != "results" {
		t.Fatalf("dir defaults: got %+v", cfg.Evaluation)
	}
}

func TestLoad_EnvOverridesKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	cfg, err := Load(writeConfig(t, "model:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.APIKey != "from-env" {
		t.Fatalf("api key: got %q", cfg.Model.APIKey)
	}
}

func TestLoad_AnthropicKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-env")
	t.Setenv("OPENAI_API_KEY", "openai-env")
	cfg, err := Load(writeConfig(t, "model:\n  provider: anthropic\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.APIKey != "anthropic-env" {
		t.Fatalf("api key: got %q", cfg.Model.APIKey)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load: expected error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "model: [not a map")); err == nil {
		t.Fatalf("Load: expected parse error")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := Default()
	if cfg.Model.Provider != "openai" || cfg.Evaluation.BatchSize != 8 {
		t.Fatalf("Default: got %+v", cfg)
	}
}
