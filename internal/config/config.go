// Package config loads runtime configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/rulecontext-mcp/internal/answer"
	"github.com/dshills/rulecontext-mcp/internal/embedder"
	"github.com/dshills/rulecontext-mcp/internal/ranking"
	"github.com/dshills/rulecontext-mcp/internal/vectorstore"
)

// Environment variables
const (
	EnvConfigFile       = "RULECONTEXT_CONFIG"
	EnvDBPath           = "RULECONTEXT_DB_PATH"
	EnvCatalogue        = "RULECONTEXT_CATALOGUE"
	EnvVectorStore      = "RULECONTEXT_VECTOR_STORE"
	EnvKeywordsFile     = "RULECONTEXT_KEYWORDS_FILE"
	EnvGenerator        = "RULECONTEXT_GENERATOR"
	EnvGeneratorModel   = "RULECONTEXT_GENERATOR_MODEL"
	EnvGeneratorURL     = "RULECONTEXT_GENERATOR_URL"
	EnvEmbedTimeout     = "RULECONTEXT_EMBED_TIMEOUT"
	EnvGeneratorTimeout = "RULECONTEXT_GENERATOR_TIMEOUT"
	EnvLogLevel         = "RULECONTEXT_LOG_LEVEL"
)

// DefaultDBPath is the database location when none is configured
const DefaultDBPath = "~/.rulecontext/rules.db"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration
type Config struct {
	DBPath      string `yaml:"db_path"`
	Catalogue   string `yaml:"catalogue"` // Optional catalogue file indexed by serve
	VectorStore string `yaml:"vector_store"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`

	EmbedTimeout     time.Duration `yaml:"embed_timeout"`
	GeneratorTimeout time.Duration `yaml:"generator_timeout"`

	Ranking      ranking.Policy `yaml:"ranking"`
	KeywordsFile string         `yaml:"keywords_file"` // Optional keyword table override

	LogLevel string `yaml:"log_level"`
}

// EmbeddingConfig selects the embedding provider. An empty provider is
// detected from the environment.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Host      string `yaml:"host"`
	CacheSize int    `yaml:"cache_size"`
}

type GeneratorConfig struct {
	Kind  string `yaml:"kind"`
	Model string `yaml:"model"`
	URL   string `yaml:"url"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DBPath:      DefaultDBPath,
		VectorStore: vectorstore.KindSQLite,
		Embedding: EmbeddingConfig{
			CacheSize: embedder.DefaultCacheSize,
		},
		Generator: GeneratorConfig{
			Kind: answer.KindDummy,
		},
		EmbedTimeout:     10 * time.Second,
		GeneratorTimeout: answer.DefaultGeneratorTimeout,
		Ranking:          ranking.DefaultPolicy(),
		LogLevel:         "info",
	}
}

// Load builds the configuration: defaults, then the file named by
// RULECONTEXT_CONFIG if set, then individual environment variables
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds the configuration from defaults and a YAML file only
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the fields present in the YAML file
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBPath, EnvDBPath)
	setString(&c.Catalogue, EnvCatalogue)
	setString(&c.VectorStore, EnvVectorStore)
	setString(&c.KeywordsFile, EnvKeywordsFile)
	setString(&c.Generator.Kind, EnvGenerator)
	setString(&c.Generator.Model, EnvGeneratorModel)
	setString(&c.Generator.URL, EnvGeneratorURL)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.Embedding.Provider, embedder.EnvProvider)
	setString(&c.Embedding.Model, embedder.EnvModel)
	setString(&c.Embedding.Host, embedder.EnvOllamaHost)

	if err := setDuration(&c.EmbedTimeout, EnvEmbedTimeout); err != nil {
		return err
	}
	return setDuration(&c.GeneratorTimeout, EnvGeneratorTimeout)
}

// Validate checks every field and normalizes enum casing
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}

	kind, err := vectorstore.ValidateKind(c.VectorStore)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.VectorStore = kind

	c.Generator.Kind = strings.ToLower(strings.TrimSpace(c.Generator.Kind))
	switch c.Generator.Kind {
	case "":
		c.Generator.Kind = answer.KindDummy
	case answer.KindNone, answer.KindDummy, answer.KindOllama:
	default:
		return fmt.Errorf("%w: unknown generator kind %q", ErrInvalidConfig, c.Generator.Kind)
	}

	if c.EmbedTimeout <= 0 || c.GeneratorTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.Embedding.CacheSize < 0 {
		return fmt.Errorf("%w: embedding cache_size must not be negative", ErrInvalidConfig)
	}
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolvedDBPath expands a leading ~ to the home directory
func (c *Config) ResolvedDBPath() (string, error) {
	if c.DBPath == ":memory:" || !strings.HasPrefix(c.DBPath, "~") {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(c.DBPath, "~")), nil
}

// EmbedderConfig converts to the embedder factory's configuration
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		Host:      c.Embedding.Host,
		CacheSize: c.Embedding.CacheSize,
	}
}

// AnswerGeneratorConfig converts to the answer generator factory's configuration
func (c *Config) AnswerGeneratorConfig() answer.GeneratorConfig {
	return answer.GeneratorConfig{
		Kind:      c.Generator.Kind,
		Model:     c.Generator.Model,
		ServerURL: c.Generator.URL,
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, env, err)
	}
	*dst = d
	return nil
}
