package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/tonenotes/internal/tone"
	"github.com/spf13/viper"
)

const appName = "tonenotes"

type Config struct {
	Provider     string             `mapstructure:"provider"`
	Rewrite      RewriteConfig      `mapstructure:"rewrite"`
	Notes        NotesConfig        `mapstructure:"notes"`
	Tones        tone.Set           `mapstructure:"tones"`
	Serve        ServeConfig        `mapstructure:"serve"`
	Diagnostics  DiagnosticsConfig  `mapstructure:"diagnostics"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Ollama       OllamaConfig       `mapstructure:"ollama"`
	LMStudio     LMStudioConfig     `mapstructure:"lmstudio"`
	OpenAICompat OpenAICompatConfig `mapstructure:"openai-compat"`
}

// RewriteConfig tunes tone rewrites
type RewriteConfig struct {
	Provider    string        `mapstructure:"provider"`    // Override provider for rewrites
	Model       string        `mapstructure:"model"`       // Override model for rewrites
	Debounce    time.Duration `mapstructure:"debounce"`    // Quiet period after the last dial move
	Timeout     time.Duration `mapstructure:"timeout"`     // Bound on a single rewrite call
	MaxTokens   int           `mapstructure:"max_tokens"`  // 0 = provider default
	Temperature float64       `mapstructure:"temperature"` // 0 = provider default
}

// NotesConfig configures note persistence
type NotesConfig struct {
	Enabled  bool          `mapstructure:"enabled"`  // false keeps notes in memory only
	Path     string        `mapstructure:"path"`     // SQLite file; default under XDG data dir
	Autosave time.Duration `mapstructure:"autosave"` // Debounce for saving live sessions
}

// ServeConfig configures the HTTP service
type ServeConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	MaxSessions int           `mapstructure:"max_sessions"` // Live editor sessions kept in memory
	SessionTTL  time.Duration `mapstructure:"session_ttl"`  // Idle time before a session is saved and dropped
}

// DiagnosticsConfig configures diagnostic data collection
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled"` // Record failed rewrites
	Dir     string `mapstructure:"dir"`     // Override default directory
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig configures the Ollama provider (OpenAI-compatible)
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:11434/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, Ollama ignores it
}

// LMStudioConfig configures the LM Studio provider (OpenAI-compatible)
type LMStudioConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:1234/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, LM Studio ignores it
}

// OpenAICompatConfig configures a generic OpenAI-compatible server
type OpenAICompatConfig struct {
	BaseURL string `mapstructure:"base_url"` // Required - no default
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("provider", "openai")
	v.SetDefault("rewrite.debounce", time.Second)
	v.SetDefault("rewrite.timeout", 30*time.Second)
	v.SetDefault("notes.enabled", true)
	v.SetDefault("notes.autosave", time.Second)
	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.max_sessions", 100)
	v.SetDefault("serve.session_ttl", 30*time.Minute)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	// OpenAI-compatible provider defaults
	v.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("lmstudio.base_url", "http://localhost:1234/v1")
	// openai-compat has no base_url default - it's required
	return v
}

// Load reads config.yaml from the XDG config dir or the working directory.
// A missing file is not an error.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads the config from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveAPIKey(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	resolveAPIKey(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	resolveAPIKey(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	resolveAPIKey(&cfg.Ollama.APIKey, "OLLAMA_API_KEY")
	resolveAPIKey(&cfg.LMStudio.APIKey, "LMSTUDIO_API_KEY")
	cfg.OpenAICompat.APIKey = expandEnv(cfg.OpenAICompat.APIKey)
	cfg.Ollama.BaseURL = expandEnv(cfg.Ollama.BaseURL)
	cfg.LMStudio.BaseURL = expandEnv(cfg.LMStudio.BaseURL)
	cfg.OpenAICompat.BaseURL = expandEnv(cfg.OpenAICompat.BaseURL)

	cfg.Tones = cfg.Tones.Merge(tone.Defaults())
	if cfg.Rewrite.Provider != "" || cfg.Rewrite.Model != "" {
		cfg.ApplyOverrides(cfg.Rewrite.Provider, cfg.Rewrite.Model)
	}
	if cfg.Rewrite.Debounce <= 0 {
		return nil, fmt.Errorf("rewrite.debounce must be positive, got %s", cfg.Rewrite.Debounce)
	}
	if cfg.Rewrite.Timeout <= 0 {
		return nil, fmt.Errorf("rewrite.timeout must be positive, got %s", cfg.Rewrite.Timeout)
	}
	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "gemini":
			c.Gemini.Model = model
		case "ollama":
			c.Ollama.Model = model
		case "lmstudio":
			c.LMStudio.Model = model
		case "openai-compat":
			c.OpenAICompat.Model = model
		}
	}
}

// ActiveModel returns the model configured for the active provider.
func (c *Config) ActiveModel() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	case "openai":
		return c.OpenAI.Model
	case "gemini":
		return c.Gemini.Model
	case "ollama":
		return c.Ollama.Model
	case "lmstudio":
		return c.LMStudio.Model
	case "openai-compat":
		return c.OpenAICompat.Model
	}
	return ""
}

// resolveAPIKey expands an env reference in the config value and falls back
// to the provider's conventional environment variable.
func resolveAPIKey(key *string, envVar string) {
	*key = expandEnv(*key)
	if *key == "" {
		*key = os.Getenv(envVar)
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for tonenotes.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for tonenotes.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName+"-data") // fallback
	}
	return filepath.Join(homeDir, ".local", "share", appName)
}

// GetDiagnosticsDir returns the directory for diagnostics records.
func (c *Config) GetDiagnosticsDir() string {
	if c.Diagnostics.Dir != "" {
		return c.Diagnostics.Dir
	}
	return filepath.Join(GetDataDir(), "diagnostics")
}

// GetNotesPath returns the SQLite file holding notes.
func (c *Config) GetNotesPath() string {
	if c.Notes.Path != "" {
		return c.Notes.Path
	}
	return filepath.Join(GetDataDir(), "notes.db")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes a starter config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`provider: %s

rewrite:
  debounce: %s
  timeout: %s
  # model: override the provider model for rewrites

notes:
  enabled: %t
  autosave: %s

# Personas at the four points of the tone dial
# tones:
#   top:
#     title: Gen Z
#     description: informal, internet slang, emojis

anthropic:
  model: %s

openai:
  model: %s

gemini:
  model: %s

serve:
  host: %s
  port: %d
`, cfg.Provider, cfg.Rewrite.Debounce, cfg.Rewrite.Timeout, cfg.Notes.Enabled, cfg.Notes.Autosave,
		cfg.Anthropic.Model, cfg.OpenAI.Model, cfg.Gemini.Model, cfg.Serve.Host, cfg.Serve.Port)

	return os.WriteFile(path, []byte(content), 0600)
}
