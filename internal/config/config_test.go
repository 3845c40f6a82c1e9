package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Categories) != 8 {
		t.Errorf("expected 8 categories, got %d", len(cfg.Sources.Categories))
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Embedding.Dimension != 1536 {
		t.Errorf("expected dimension 1536, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Index.Name != "news-ai" {
		t.Errorf("expected index 'news-ai', got %q", cfg.Index.Name)
	}
	if cfg.Summarization.MaxChars != 8000 {
		t.Errorf("expected max_chars 8000, got %d", cfg.Summarization.MaxChars)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
  api_key_env: ANTHROPIC_API_KEY
index:
  backend: pinecone
  mode: append
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.LLM.Provider)
	}
	if cfg.Index.Mode != "append" {
		t.Errorf("expected mode 'append', got %q", cfg.Index.Mode)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Index.Pinecone.Region != "us-east-1" {
		t.Errorf("expected default region, got %q", cfg.Index.Pinecone.Region)
	}
	if len(cfg.Sources.Categories) != 8 {
		t.Errorf("expected default categories, got %v", cfg.Sources.Categories)
	}
	if cfg.PollInterval().Seconds() != 2 {
		t.Errorf("expected 2s poll interval, got %s", cfg.PollInterval())
	}
}

func TestParseRejectsUnknownMode(t *testing.T) {
	_, err := parse([]byte("index:\n  mode: merge\n"))
	if err == nil {
		t.Fatal("expected error for unknown index mode")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	t.Setenv("NEWS_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	err = cfg.Validate()
	var missing *MissingCredentialsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if len(missing.Vars) != 2 {
		t.Errorf("expected 2 missing vars, got %v", missing.Vars)
	}
	if missing.Vars[0] != "NEWS_API_KEY" || missing.Vars[1] != "OPENAI_API_KEY" {
		t.Errorf("unexpected missing vars: %v", missing.Vars)
	}
}

func TestValidatePineconeKey(t *testing.T) {
	t.Setenv("NEWS_API_KEY", "news")
	t.Setenv("OPENAI_API_KEY", "openai")
	t.Setenv("PINECONE_API_KEY", "")

	cfg, _ := parse([]byte("index:\n  backend: pinecone\n"))
	err := cfg.Validate()
	var missing *MissingCredentialsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if len(missing.Vars) != 1 || missing.Vars[0] != "PINECONE_API_KEY" {
		t.Errorf("expected only PINECONE_API_KEY missing, got %v", missing.Vars)
	}

	t.Setenv("PINECONE_API_KEY", "pc")
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error once key is set, got %v", err)
	}
}

func TestDeleteSettleOnlyForPinecone(t *testing.T) {
	for backend, want := range map[string]time.Duration{
		"sqlite":        0,
		"memory":        0,
		"elasticsearch": 0,
		"pinecone":      5 * time.Second,
		"Pinecone":      5 * time.Second,
	} {
		cfg, err := parse([]byte("index:\n  backend: " + backend + "\n"))
		if err != nil {
			t.Fatalf("parse %s: %v", backend, err)
		}
		if got := cfg.DeleteSettle(); got != want {
			t.Errorf("%s: expected settle %v, got %v", backend, want, got)
		}
	}

	cfg, _ := parse([]byte("index:\n  backend: pinecone\n  pinecone:\n    delete_settle_secs: 1\n"))
	if got := cfg.DeleteSettle(); got != time.Second {
		t.Errorf("expected configured settle 1s, got %v", got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.SQLitePath() != filepath.Join("/custom/path", "index.db") {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath())
	}
}
