package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/NewsSense/internal/news"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources       Sources       `yaml:"sources"`
	LLM           LLM           `yaml:"llm"`
	Embedding     Embedding     `yaml:"embedding"`
	Index         Index         `yaml:"index"`
	Summarization Summarization `yaml:"summarization"`
	QA            QA            `yaml:"qa"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Sources struct {
	Categories []string      `yaml:"categories"`
	NewsAPI    NewsAPIConfig `yaml:"newsapi"`
	Feeds      []Feed        `yaml:"feeds"`
	Enrich     Enrich        `yaml:"enrich"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	PageSize  int    `yaml:"page_size"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type Enrich struct {
	Enabled     bool `yaml:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs"`
}

type LLM struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	OllamaURL string `yaml:"ollama_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

type Embedding struct {
	Provider  string         `yaml:"provider"`
	Model     string         `yaml:"model"`
	APIKeyEnv string         `yaml:"api_key_env"`
	BaseURL   string         `yaml:"base_url"`
	OllamaURL string         `yaml:"ollama_url"`
	Dimension int            `yaml:"dimension"`
	Cache     EmbeddingCache `yaml:"cache"`
}

type EmbeddingCache struct {
	Type        string `yaml:"type"`
	Capacity    int    `yaml:"capacity"`
	TTLSecs     int    `yaml:"ttl_secs"`
	RedisURLEnv string `yaml:"redis_url_env"`
}

type Index struct {
	Backend          string        `yaml:"backend"`
	Name             string        `yaml:"name"`
	Mode             string        `yaml:"mode"`
	PollIntervalSecs int           `yaml:"poll_interval_secs"`
	MaxPollAttempts  int           `yaml:"max_poll_attempts"`
	SQLite           SQLiteIndex   `yaml:"sqlite"`
	Elasticsearch    ElasticIndex  `yaml:"elasticsearch"`
	Pinecone         PineconeIndex `yaml:"pinecone"`
}

type SQLiteIndex struct {
	Path string `yaml:"path"`
}

type ElasticIndex struct {
	Addresses []string `yaml:"addresses"`
	APIKeyEnv string   `yaml:"api_key_env"`
}

type PineconeIndex struct {
	APIKeyEnv        string `yaml:"api_key_env"`
	ControllerURL    string `yaml:"controller_url"`
	Cloud            string `yaml:"cloud"`
	Region           string `yaml:"region"`
	DeleteSettleSecs int    `yaml:"delete_settle_secs"`
}

type Summarization struct {
	MaxChars    int `yaml:"max_chars"`
	Concurrency int `yaml:"concurrency"`
}

type QA struct {
	TopK int `yaml:"top_k"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// MissingCredentialsError reports required secrets that are not present in
// the environment.
type MissingCredentialsError struct {
	Vars []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing required credentials: set %s in the environment or .env file",
		strings.Join(e.Vars, ", "))
}

// ConfigDir returns the XDG config directory for newssense.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newssense")
}

// DataDir returns the XDG data directory for newssense.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newssense")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newssense/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newssense init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			NewsAPI: NewsAPIConfig{
				Enabled:   true,
				APIKeyEnv: "NEWS_API_KEY",
				BaseURL:   "https://newsapi.org/v2/everything",
				PageSize:  20,
			},
			Enrich: Enrich{TimeoutSecs: 15},
		},
		LLM: LLM{
			Provider:  "openai",
			Model:     "gpt-3.5-turbo",
			APIKeyEnv: "OPENAI_API_KEY",
			OllamaURL: "http://localhost:11434",
			MaxTokens: 1024,
		},
		Embedding: Embedding{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			OllamaURL: "http://localhost:11434",
			Dimension: 1536,
			Cache: EmbeddingCache{
				Type:        "none",
				Capacity:    10000,
				TTLSecs:     86400,
				RedisURLEnv: "REDIS_URL",
			},
		},
		Index: Index{
			Backend:          "sqlite",
			Name:             "news-ai",
			Mode:             "reset",
			PollIntervalSecs: 2,
			MaxPollAttempts:  30,
			Elasticsearch: ElasticIndex{
				Addresses: []string{"http://localhost:9200"},
			},
			Pinecone: PineconeIndex{
				APIKeyEnv:        "PINECONE_API_KEY",
				ControllerURL:    "https://api.pinecone.io",
				Cloud:            "aws",
				Region:           "us-east-1",
				DeleteSettleSecs: 5,
			},
		},
		Summarization: Summarization{MaxChars: 8000, Concurrency: 1},
		QA:            QA{TopK: 10},
		Server:        Server{Port: 8000},
		Logging:       Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Sources.Categories) == 0 {
		cfg.Sources.Categories = append([]string(nil), news.DefaultCategories...)
	}

	switch cfg.Index.Mode {
	case "reset", "append":
	default:
		return nil, fmt.Errorf("invalid index mode %q (want reset or append)", cfg.Index.Mode)
	}

	return cfg, nil
}

// Validate checks that every credential needed by the selected providers is
// present in the environment.
func (c *Config) Validate() error {
	required := make(map[string]struct{})
	if c.Sources.NewsAPI.Enabled {
		required[c.Sources.NewsAPI.APIKeyEnv] = struct{}{}
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic":
		required[c.LLM.APIKeyEnv] = struct{}{}
	}
	if strings.ToLower(c.Embedding.Provider) == "openai" {
		required[c.Embedding.APIKeyEnv] = struct{}{}
	}
	if strings.ToLower(c.Index.Backend) == "pinecone" {
		required[c.Index.Pinecone.APIKeyEnv] = struct{}{}
	}
	if strings.ToLower(c.Embedding.Cache.Type) == "redis" {
		required[c.Embedding.Cache.RedisURLEnv] = struct{}{}
	}

	var missing []string
	for env := range required {
		if env == "" || os.Getenv(env) == "" {
			if env == "" {
				env = "<api_key_env not configured>"
			}
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingCredentialsError{Vars: missing}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SQLitePath returns the local index database path.
func (c *Config) SQLitePath() string {
	if c.Index.SQLite.Path != "" {
		return c.Index.SQLite.Path
	}
	return filepath.Join(c.GetDataDir(), "index.db")
}

// PollInterval is the delay between index readiness checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Index.PollIntervalSecs) * time.Second
}

// DeleteSettle is the pause between deleting and recreating an index. Only
// Pinecone needs one; the other backends delete synchronously.
func (c *Config) DeleteSettle() time.Duration {
	if !strings.EqualFold(c.Index.Backend, "pinecone") {
		return 0
	}
	return time.Duration(c.Index.Pinecone.DeleteSettleSecs) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
