// Package config loads docchat settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"docchat/internal/llm"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Defaults.
const (
	DefaultOpenAIURL      = "https://api.openai.com/v1"
	DefaultLLMModel       = "llama-3.1-8b-instant"
	DefaultTemperature    = 0.6
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultTopK           = 4
	DefaultMaxHistory     = 5
	MinHistory            = 1
	MaxHistory            = 20
	DefaultIndexPath      = "storage/index.db"
	DefaultDatabasePath   = "storage/chat_history.db"
	DefaultAddr           = "localhost:8080"
	DefaultEmbedWorkers   = 4
	ConfigFileEnv         = "DOCCHAT_CONFIG"
)

// LLMConfig configures the chat model used for answers.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig configures the embedding model.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// Workers is the number of embedding requests in flight during ingestion.
	Workers int `yaml:"workers"`
}

// ChunkerConfig sets chunk sizes in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	IndexPath    string `yaml:"index_path"`
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root application configuration.
type Config struct {
	LLM        LLMConfig       `yaml:"llm"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Chunker    ChunkerConfig   `yaml:"chunker"`
	Storage    StorageConfig   `yaml:"storage"`
	Server     ServerConfig    `yaml:"server"`
	TopK       int             `yaml:"top_k"`
	MaxHistory int             `yaml:"max_history"`
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key string
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Msg)
}

// Default returns the built-in settings. Base URLs are left empty and
// resolved per provider once the final provider is known.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       DefaultLLMModel,
			Temperature: DefaultTemperature,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOllama,
			Model:    DefaultEmbeddingModel,
			Workers:  DefaultEmbedWorkers,
		},
		Chunker:    ChunkerConfig{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap},
		Storage:    StorageConfig{IndexPath: DefaultIndexPath, DatabasePath: DefaultDatabasePath},
		Server:     ServerConfig{Addr: DefaultAddr},
		TopK:       DefaultTopK,
		MaxHistory: DefaultMaxHistory,
	}
}

// Load builds the configuration: defaults, then .env and the process
// environment, then the YAML file at path (or $DOCCHAT_CONFIG). A missing
// .env is ignored; a named YAML file that does not exist is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	integer := func(dst *int, key string) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigurationError{Key: key, Msg: fmt.Sprintf("not an integer: %q", v)}
		}
		*dst = n
		return nil
	}

	str(&cfg.LLM.Provider, "LLM_PROVIDER")
	str(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	str(&cfg.LLM.APIKey, "LLM_API_KEY", "GROQ_API_KEY")
	str(&cfg.LLM.Model, "LLM_MODEL")
	if v, ok := lookup("LLM_TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return &ConfigurationError{Key: "LLM_TEMPERATURE", Msg: fmt.Sprintf("not a number: %q", v)}
		}
		cfg.LLM.Temperature = float32(f)
	}

	str(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	str(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL", "OLLAMA_URL")
	str(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	str(&cfg.Embedding.Model, "EMBEDDING_MODEL")

	str(&cfg.Storage.IndexPath, "INDEX_PATH")
	str(&cfg.Storage.DatabasePath, "DATABASE_PATH")
	str(&cfg.Server.Addr, "DOCCHAT_ADDR")

	for key, dst := range map[string]*int{
		"CHUNK_SIZE":        &cfg.Chunker.Size,
		"CHUNK_OVERLAP":     &cfg.Chunker.Overlap,
		"TOP_K":             &cfg.TopK,
		"MAX_HISTORY":       &cfg.MaxHistory,
		"EMBEDDING_WORKERS": &cfg.Embedding.Workers,
	} {
		if err := integer(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills fields a YAML file may have blanked and normalises
// the rest.
func applyDefaults(cfg *Config) {
	d := Default()
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.Embedding.Provider = strings.ToLower(cfg.Embedding.Provider)
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.BaseURL == "" {
		if cfg.LLM.Provider == ProviderOllama {
			cfg.LLM.BaseURL = DefaultOllamaURL
		} else {
			cfg.LLM.BaseURL = llm.DefaultOpenAIBaseURL
		}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = d.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = d.Embedding.Model
	}
	if cfg.Embedding.BaseURL == "" {
		if cfg.Embedding.Provider == ProviderOpenAI {
			cfg.Embedding.BaseURL = DefaultOpenAIURL
		} else {
			cfg.Embedding.BaseURL = DefaultOllamaURL
		}
	}
	if cfg.Embedding.Provider == ProviderOpenAI && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = d.Chunker.Size
	}
	if cfg.TopK <= 0 {
		cfg.TopK = d.TopK
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = d.Storage.IndexPath
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = d.Storage.DatabasePath
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Embedding.Workers <= 0 {
		cfg.Embedding.Workers = d.Embedding.Workers
	}
	cfg.MaxHistory = ClampHistory(cfg.MaxHistory)
}

// ClampHistory bounds an exchange count to [MinHistory, MaxHistory].
func ClampHistory(n int) int {
	return max(MinHistory, min(n, MaxHistory))
}

// Validate checks that the configuration can drive the pipelines.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return &ConfigurationError{Key: "GROQ_API_KEY", Msg: "an API key is required for the openai LLM provider"}
		}
	case ProviderOllama:
	default:
		return &ConfigurationError{Key: "LLM_PROVIDER", Msg: fmt.Sprintf("unknown provider %q", c.LLM.Provider)}
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return &ConfigurationError{Key: "EMBEDDING_API_KEY", Msg: "an API key is required for the openai embedding provider"}
		}
	case ProviderOllama:
	default:
		return &ConfigurationError{Key: "EMBEDDING_PROVIDER", Msg: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}

	if c.Chunker.Size <= 0 {
		return &ConfigurationError{Key: "CHUNK_SIZE", Msg: "must be positive"}
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return &ConfigurationError{Key: "CHUNK_OVERLAP", Msg: fmt.Sprintf("must be in [0, %d)", c.Chunker.Size)}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return &ConfigurationError{Key: "LLM_TEMPERATURE", Msg: "must be between 0 and 2"}
	}
	return nil
}
