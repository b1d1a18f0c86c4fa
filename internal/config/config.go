// Package config loads friday configuration from YAML files and FRIDAY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "FRIDAY"

type Config struct {
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Qdrant       QdrantConfig       `mapstructure:"qdrant" yaml:"qdrant"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding" yaml:"embedding"`
	RAG          RAGConfig          `mapstructure:"rag" yaml:"rag"`
	Tools        ToolsConfig        `mapstructure:"tools" yaml:"tools"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

type LLMConfig struct {
	Provider       string  `mapstructure:"provider" yaml:"provider"` // openai, ollama
	Endpoint       string  `mapstructure:"endpoint" yaml:"endpoint"`
	Model          string  `mapstructure:"model" yaml:"model"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Temperature    float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	PromptPath     string  `mapstructure:"prompt_path" yaml:"prompt_path,omitempty"`
}

type QdrantConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	UseTLS      bool     `mapstructure:"use_tls" yaml:"use_tls"`
	Collections []string `mapstructure:"collections" yaml:"collections"`
	TextField   string   `mapstructure:"text_field" yaml:"text_field"`
}

type EmbeddingConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type RAGConfig struct {
	TopK          int     `mapstructure:"top_k" yaml:"top_k"`
	MinSimilarity float32 `mapstructure:"min_similarity" yaml:"min_similarity"`
}

type ToolsConfig struct {
	DefinitionsPath string `mapstructure:"definitions_path" yaml:"definitions_path"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // 0 disables
}

type ConversationConfig struct {
	MaxContextTokens int `mapstructure:"max_context_tokens" yaml:"max_context_tokens"`
	MinTurnsToKeep   int `mapstructure:"min_turns_to_keep" yaml:"min_turns_to_keep"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // empty disables the transcript store
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "ollama",
			Endpoint:       "http://localhost:11434",
			Model:          "qwen2.5:7b",
			TimeoutSeconds: 120,
			Temperature:    0.2,
			MaxTokens:      2048,
		},
		Qdrant: QdrantConfig{
			Host:        "localhost",
			Port:        6334,
			Collections: []string{"documents"},
			TextField:   "content",
		},
		Embedding: EmbeddingConfig{
			Endpoint:       "http://localhost:8080/embed",
			TimeoutSeconds: 30,
		},
		RAG: RAGConfig{
			TopK:          5,
			MinSimilarity: 0.3,
		},
		Tools: ToolsConfig{
			DefinitionsPath: "tools.yaml",
			TimeoutSeconds:  30,
		},
		Conversation: ConversationConfig{
			MaxContextTokens: 4000,
			MinTurnsToKeep:   2,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			Path: filepath.Join(".friday", "sessions.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path. An empty path reads defaults and the
// environment only.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPaths loads the first path that exists, or defaults plus the
// environment if none does.
func LoadFromPaths(paths ...string) (*Config, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Load("")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// every key needs a default for AutomaticEnv to reach it during Unmarshal
	d := DefaultConfig()
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.prompt_path", d.LLM.PromptPath)
	v.SetDefault("qdrant.host", d.Qdrant.Host)
	v.SetDefault("qdrant.port", d.Qdrant.Port)
	v.SetDefault("qdrant.api_key", d.Qdrant.APIKey)
	v.SetDefault("qdrant.use_tls", d.Qdrant.UseTLS)
	v.SetDefault("qdrant.collections", d.Qdrant.Collections)
	v.SetDefault("qdrant.text_field", d.Qdrant.TextField)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.timeout_seconds", d.Embedding.TimeoutSeconds)
	v.SetDefault("rag.top_k", d.RAG.TopK)
	v.SetDefault("rag.min_similarity", d.RAG.MinSimilarity)
	v.SetDefault("tools.definitions_path", d.Tools.DefinitionsPath)
	v.SetDefault("tools.timeout_seconds", d.Tools.TimeoutSeconds)
	v.SetDefault("conversation.max_context_tokens", d.Conversation.MaxContextTokens)
	v.SetDefault("conversation.min_turns_to_keep", d.Conversation.MinTurnsToKeep)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	return v
}

// Validate rejects settings the rest of the program cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai or ollama, got %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("qdrant.port out of range: %d", c.Qdrant.Port))
	}
	if c.Conversation.MaxContextTokens < 0 || c.Conversation.MinTurnsToKeep < 0 {
		errs = append(errs, errors.New("conversation limits must not be negative"))
	}
	if c.Tools.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("tools.timeout_seconds must not be negative"))
	}
	return errors.Join(errs...)
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}
