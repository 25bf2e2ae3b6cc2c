package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. ENGRAM_SERVER_PORT=8080 maps to server.port.
	EnvPrefix = "ENGRAM_"

	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Config holds all engram configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	LLM       LLMConfig       `koanf:"llm"`
	Index     IndexConfig     `koanf:"index"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Decay     DecayConfig     `koanf:"decay"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type EmbeddingConfig struct {
	Provider   string `koanf:"provider"` // "ollama", "hash"
	OllamaURL  string `koanf:"ollama_url"`
	Model      string `koanf:"model"`
	Dimensions int    `koanf:"dimensions"`
}

type LLMConfig struct {
	Provider     string `koanf:"provider"` // "anthropic", "ollama", "none"
	Model        string `koanf:"model"`
	OllamaURL    string `koanf:"ollama_url"`
	OllamaModel  string `koanf:"ollama_model"`
	AnthropicKey string `koanf:"anthropic_key"`
}

type IndexConfig struct {
	StrategyOverride string `koanf:"strategy_override"` // "", "exact", "binary_rescore", "hnsw"
}

type ScoringConfig struct {
	Preset    string `koanf:"preset"`
	ModelSize string `koanf:"model_size"` // "small", "medium", "large"
}

type DecayConfig struct {
	Enabled         bool    `koanf:"enabled"`
	IntervalMinutes int     `koanf:"interval_minutes"`
	Threshold       float64 `koanf:"threshold"`
	BatchSize       int     `koanf:"batch_size"`
	DryRun          bool    `koanf:"dry_run"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37997,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		LLM: LLMConfig{
			Provider:    "none",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
		},
		Scoring: ScoringConfig{
			Preset:    "balanced",
			ModelSize: "medium",
		},
		Decay: DecayConfig{
			Enabled:         true,
			IntervalMinutes: 60,
			Threshold:       0.05,
			BatchSize:       100,
		},
	}
}

// Load builds the config from defaults, then an optional YAML file, then
// ENGRAM_* environment variables, then explicit overrides, each layer
// winning over the last.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(Delimiter)

	// Defaults are loaded as leaf keys so a later layer setting one key
	// in a section merges with, rather than replaces, its siblings.
	def := Default()
	if err := k.Load(confmap.Provider(map[string]any{
		"server.bind":             def.Server.Bind,
		"server.port":             def.Server.Port,
		"database.path":           def.Database.Path,
		"embedding.provider":      def.Embedding.Provider,
		"embedding.ollama_url":    def.Embedding.OllamaURL,
		"embedding.model":         def.Embedding.Model,
		"embedding.dimensions":    def.Embedding.Dimensions,
		"llm.provider":            def.LLM.Provider,
		"llm.model":               def.LLM.Model,
		"llm.ollama_url":          def.LLM.OllamaURL,
		"llm.ollama_model":        def.LLM.OllamaModel,
		"llm.anthropic_key":       def.LLM.AnthropicKey,
		"index.strategy_override": def.Index.StrategyOverride,
		"scoring.preset":          def.Scoring.Preset,
		"scoring.model_size":      def.Scoring.ModelSize,
		"decay.enabled":           def.Decay.Enabled,
		"decay.interval_minutes":  def.Decay.IntervalMinutes,
		"decay.threshold":         def.Decay.Threshold,
		"decay.batch_size":        def.Decay.BatchSize,
		"decay.dry_run":           def.Decay.DryRun,
	}, Delimiter), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", Delimiter, 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile() string {
	candidates := []string{"engram.yaml", "engram.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.engram/engram.yaml")
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Index.StrategyOverride {
	case "", "exact", "binary_rescore", "hnsw":
	default:
		return fmt.Errorf("unknown index strategy override %q", c.Index.StrategyOverride)
	}
	switch c.Scoring.ModelSize {
	case "small", "medium", "large":
	default:
		return fmt.Errorf("unknown model size %q", c.Scoring.ModelSize)
	}
	if c.Decay.Threshold < 0 || c.Decay.Threshold > 1 {
		return fmt.Errorf("decay threshold %v out of range", c.Decay.Threshold)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
