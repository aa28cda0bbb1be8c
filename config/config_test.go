package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
  "general": {"log_level": "info"},
  "llm": {
    "providers": {"openai": {"type": "openai", "api_key": "test", "models": {"gpt-4o": {"name": "gpt-4o"}}}},
    "routing": {"planning": "gpt-4o", "fallback": "gpt-4o"}
  },
  "search": {"serper_api_key": "key"}
}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadConfig(path)
	if cfg.Research.MaxIterations != 3 {
		t.Fatalf("expected default max iterations 3, got %d", cfg.Research.MaxIterations)
	}
	if cfg.Research.NarrationInterval != 5*time.Second {
		t.Fatalf("expected default narration interval 5s, got %v", cfg.Research.NarrationInterval)
	}
	if cfg.Search.MaxResults != 5 || cfg.Search.MaxFetch != 2 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.LLM.Routing.Planning != "gpt-4o" {
		t.Fatalf("routing not loaded: %+v", cfg.LLM.Routing)
	}
}

func TestLoadConfigPanicsOnHalfConfiguredRedis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{"storage": {"redis": {"host": "localhost"}}}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for redis host without port")
		}
	}()
	LoadConfig(path)
}

func TestPostgresValidateRequiresDBName(t *testing.T) {
	cfg := PostgresConfig{Host: "localhost"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing dbname")
	}
	cfg = PostgresConfig{URL: "postgres://u:p@localhost:5432/db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("url-only config should validate: %v", err)
	}
}
