package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/weaver/internal/prompts"
)

type Config struct {
	AI         AIConfig         `yaml:"ai" validate:"required"`
	Generation GenerationConfig `yaml:"generation" validate:"required"`
	Limits     Limits           `yaml:"limits" validate:"required"`
	Storage    StorageConfig    `yaml:"storage" validate:"required"`
	Prompts    prompts.Files    `yaml:"prompts"`
	Log        LogConfig        `yaml:"log" validate:"required"`
}

type AIConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai mock"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key"`
	// Timeout bounds a single request in seconds; 0 leaves it to the
	// context.
	Timeout int `yaml:"timeout" validate:"min=0,max=3600"`
}

type GenerationConfig struct {
	PageCount          int     `yaml:"page_count" validate:"min=0,max=5000"`
	BibleTemperature   float64 `yaml:"bible_temperature" validate:"min=0,max=2"`
	OutlineTemperature float64 `yaml:"outline_temperature" validate:"min=0,max=2"`
	ChapterTemperature float64 `yaml:"chapter_temperature" validate:"min=0,max=2"`
	SummaryTemperature float64 `yaml:"summary_temperature" validate:"min=0,max=2"`
	RetrievalTopK      int     `yaml:"retrieval_top_k" validate:"min=1,max=20"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend" validate:"required,oneof=sqlite file redis memory"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0,max=15"`
	Prefix   string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	return Config{
		AI: AIConfig{
			Provider: "gemini",
			Timeout:  0,
		},
		Generation: GenerationConfig{
			PageCount:          150,
			BibleTemperature:   0.8,
			OutlineTemperature: 0.8,
			ChapterTemperature: 0.75,
			SummaryTemperature: 0.5,
			RetrievalTopK:      2,
		},
		Limits: DefaultLimits(),
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(dataDir(), "weaver.db"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "weaver:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields Default. Environment variables fill in the
// API key when the file leaves it empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = getConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(expandTilde(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func getConfigPath() string {
	if path := os.Getenv("WEAVER_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weaver", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "weaver", "config.yaml")
}

func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "weaver")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "weaver")
}

// expandTilde expands a leading "~/" to the user's home directory.
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) applyEnv() {
	if c.AI.APIKey == "" || strings.HasPrefix(c.AI.APIKey, "${") {
		switch c.AI.Provider {
		case "openai":
			c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if addr := os.Getenv("WEAVER_REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Addr = addr
	}
}

func (c *Config) validate() error {
	c.Storage.Path = expandTilde(c.Storage.Path)
	c.Prompts.StoryBible = expandTilde(c.Prompts.StoryBible)
	c.Prompts.Outline = expandTilde(c.Prompts.Outline)
	c.Prompts.ChapterSystem = expandTilde(c.Prompts.ChapterSystem)
	c.Prompts.SummarySystem = expandTilde(c.Prompts.SummarySystem)

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.AI.Provider != "mock" && c.AI.APIKey == "" {
		return fmt.Errorf("config validation failed: no API key for provider %s (set ai.api_key or %s)",
			c.AI.Provider, apiKeyEnv(c.AI.Provider))
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("config validation failed: storage.redis.addr is required for the redis backend")
	}
	if (c.Storage.Backend == "sqlite" || c.Storage.Backend == "file") && c.Storage.Path == "" {
		return fmt.Errorf("config validation failed: storage.path is required for the %s backend", c.Storage.Backend)
	}
	return nil
}

func apiKeyEnv(provider string) string {
	if provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// RequestTimeout is the per-request HTTP timeout, zero for none.
func (a AIConfig) RequestTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Save writes cfg as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Path reports which file Load would read for an empty path argument.
func Path() string {
	return getConfigPath()
}
