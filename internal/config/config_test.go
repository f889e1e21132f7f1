package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("CHUNK_SIZE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.ChunkSize != 900 || cfg.ChunkOverlap != 150 {
		t.Fatalf("unexpected chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("expected default upload limit 50MB, got %d", cfg.MaxUploadBytes)
	}
	if cfg.Neo4jEnabled() {
		t.Fatalf("expected neo4j disabled by default")
	}
	if !cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker enabled by default")
	}
	if cfg.ResilienceBreakerMinRequests != 10 || cfg.ResilienceBreakerHalfOpenMax != 2 {
		t.Fatalf("unexpected breaker sample defaults: %d/%d", cfg.ResilienceBreakerMinRequests, cfg.ResilienceBreakerHalfOpenMax)
	}
	if cfg.APIProgressStreamMaxOpen != 128 {
		t.Fatalf("expected default stream cap 128, got %d", cfg.APIProgressStreamMaxOpen)
	}
}

func TestLoadRejectsNegativeBreakerCounts(t *testing.T) {
	t.Setenv("RESILIENCE_BREAKER_MIN_REQUESTS", "-1")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for negative breaker min requests")
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9000" {
		t.Fatalf("expected api port override, got %q", cfg.APIPort)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if !cfg.Neo4jEnabled() {
		t.Fatalf("expected neo4j enabled")
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Fatalf("expected upload limit 1024, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadReadsYAMLFileBelowEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docintel.yaml")
	content := "chunk_size: 400\nchunk_overlap: 40\napi_port: \"7000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("API_PORT", "7100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 400 || cfg.ChunkOverlap != 40 {
		t.Fatalf("expected chunk settings from file, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.APIPort != "7100" {
		t.Fatalf("expected env to win over file, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsOverlapNotBelowChunkSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error")
	}
}
