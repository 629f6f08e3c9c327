// Package config loads and manages game configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, GEMINI_API_KEY, WAIFU_PROVIDER, etc.), including a .env file
// 2. Config file path specified via --config flag
// 3. ~/.config/waifu/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/waifu/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := Dir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single narrative provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ImageConfig selects and tunes the image synthesis backends.
type ImageConfig struct {
	// Backend: "gradio" (default, falls back to gemini) | "gemini"
	Backend string `yaml:"backend"`

	// GradioEndpoint is the full Gradio call URL, e.g. https://host/gradio_api/call/generate.
	GradioEndpoint string `yaml:"gradio_endpoint"`

	// GeminiModels are tried in order.
	GeminiModels []string `yaml:"gemini_models"`

	// Style: "Anime" | "Manga" | "Male"
	Style string `yaml:"style"`

	// RatePerMinute caps synthesis requests across backends. 0 = unlimited.
	RatePerMinute int `yaml:"rate_per_minute"`

	// CacheTTL reuses an image for an identical prompt. 0 disables the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	// Backend: "sqlite" (default) | "redis"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Empty = ~/.config/waifu/sessions.db.
	Path string `yaml:"path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	// LegacyFile is a JSON export from the browser version, migrated on startup.
	LegacyFile string `yaml:"legacy_file"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// File is the JSON log path. Empty = ~/.config/waifu/logs/waifu.log.
	File  string `yaml:"file"`
	Level string `yaml:"level"`
	// Console mirrors logs to stderr.
	Console    bool `yaml:"console"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9090". Empty = disabled.
	Addr string `yaml:"addr"`
}

// Config is the complete configuration structure.
type Config struct {
	// Provider is the active narrative provider name (e.g. "gemini", "deepseek", "anthropic")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// UserName is how the persona addresses the player.
	UserName string `yaml:"user_name"`

	// Temperature for narrative turns. nil = provider default.
	Temperature *float64 `yaml:"temperature"`

	// MaxRounds caps stream openings per turn.
	MaxRounds int `yaml:"max_rounds"`

	// MaxTokens per narrative response. 0 = provider default.
	MaxTokens int `yaml:"max_tokens"`

	// SaveDebounce delays persistence after a state change.
	SaveDebounce time.Duration `yaml:"save_debounce"`

	// JournalDir receives per-session JSONL turn journals. Empty = disabled.
	JournalDir string `yaml:"journal_dir"`

	Image   ImageConfig   `yaml:"image"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:     "gemini",
		Providers:    make(map[string]*ProviderConfig),
		UserName:     "你",
		MaxRounds:    5,
		SaveDebounce: time.Second,
		Image: ImageConfig{
			Backend:       "gradio",
			GeminiModels:  []string{"gemini-3-pro-image-preview", "gemini-2.5-flash-image"},
			Style:         "Anime",
			RatePerMinute: 20,
			CacheTTL:      10 * time.Minute,
			Timeout:       2 * time.Minute,
		},
		Store: StoreConfig{
			Backend:     "sqlite",
			RedisPrefix: "waifu:",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Dir returns ~/.config/waifu.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "waifu"), nil
}

// Load reads the config file and merges environment variable overrides.
// A .env file in the working directory is loaded first; existing
// environment variables win over it.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if configPath == "" {
		if dir, err := Dir(); err == nil {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	applyEnvOverrides(cfg)

	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = time.Second
	}
	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// DefaultPath resolves name inside ~/.config/waifu when p is empty.
func DefaultPath(p, name string) string {
	if p != "" {
		return p
	}
	dir, err := Dir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

func providerEntry(cfg *Config, name string) *ProviderConfig {
	if cfg.Providers[name] == nil {
		cfg.Providers[name] = &ProviderConfig{}
	}
	return cfg.Providers[name]
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic overrides land on it.
	if v := os.Getenv("WAIFU_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("WAIFU_MODEL"); v != "" {
		cfg.Model = v
	}

	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		providerEntry(cfg, cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		providerEntry(cfg, cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Vendor-specific keys
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		providerEntry(cfg, "anthropic").APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		providerEntry(cfg, "openai").APIKey = v
	}
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if geminiKey != "" {
		providerEntry(cfg, "gemini").APIKey = geminiKey
	}

	// Images
	if v := os.Getenv("GRADIO_ENDPOINT"); v != "" {
		cfg.Image.GradioEndpoint = v
	}
	if v := os.Getenv("IMAGE_BACKEND"); v != "" {
		cfg.Image.Backend = v
	}

	// Storage
	if v := os.Getenv("WAIFU_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.RedisDB = n
		}
	}
}
