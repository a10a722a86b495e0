package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 768
qdrant:
  host: qdrant.internal
  port: 6334
  collection: mbs-rules
retrieval:
  alpha: 0.6
  default_top_k: 5
analytics:
  anomaly_tolerance: 0.01
data:
  db_path: /var/lib/mbsiq/market.db
server:
  host: 0.0.0.0
  port: 8085
  rate_limit_rps: 10
  rate_limit_burst: 20
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"RETRIEVAL_ALPHA", "RETRIEVAL_TOP_K",
		"ANALYTICS_ANOMALY_TOLERANCE", "MBSIQ_MARKET_DB",
		"MBSIQ_HOST", "MBSIQ_PORT", "MBSIQ_RATE_LIMIT_RPS", "MBSIQ_RATE_LIMIT_BURST",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER":          "ollama",
		"EMBEDDING_MODEL":             "nomic-embed-text",
		"EMBEDDING_DIMENSIONS":        "768",
		"QDRANT_HOST":                 "qdrant.internal",
		"QDRANT_PORT":                 "6334",
		"QDRANT_COLLECTION":           "mbs-rules",
		"RETRIEVAL_ALPHA":             "0.6",
		"RETRIEVAL_TOP_K":             "5",
		"ANALYTICS_ANOMALY_TOLERANCE": "0.01",
		"MBSIQ_MARKET_DB":             "/var/lib/mbsiq/market.db",
		"MBSIQ_HOST":                  "0.0.0.0",
		"MBSIQ_PORT":                  "8085",
		"MBSIQ_RATE_LIMIT_RPS":        "10",
		"MBSIQ_RATE_LIMIT_BURST":      "20",
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("EMBEDDING_PROVIDER", "openai")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("EMBEDDING_PROVIDER"); got != "openai" {
		t.Errorf("EMBEDDING_PROVIDER: expected env override %q, got %q", "openai", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.6, "0.6"},
		{0.005, "0.005"},
		{10.0, "10"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
