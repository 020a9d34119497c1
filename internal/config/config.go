package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Gmail  GmailConfig  `mapstructure:"gmail"`
	Gemini GeminiConfig `mapstructure:"gemini"`
	Cache  CacheConfig  `mapstructure:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GmailConfig bounds the mailbox gateway's request behavior.
type GmailConfig struct {
	MetadataMax   int           `mapstructure:"metadata_max"`
	FullChunkSize int           `mapstructure:"full_chunk_size"`
	ChunkPause    time.Duration `mapstructure:"chunk_pause"`
}

// GeminiConfig holds the analysis backend settings.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the analysis cache settings.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// Address returns the host:port the server binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// Load reads configuration from defaults, an optional config file, and
// EMAIL_TRIAGE_* environment variables.
func Load() (*Config, error) {
	return LoadWithViper(viper.New(), "")
}

// LoadWithFile reads configuration like Load, but from an explicit
// config file.
func LoadWithFile(file string) (*Config, error) {
	return LoadWithViper(viper.New(), file)
}

// LoadWithViper loads configuration through the given Viper instance.
func LoadWithViper(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v, file); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Gmail defaults
	v.SetDefault("gmail.metadata_max", 50)
	v.SetDefault("gmail.full_chunk_size", 20)
	v.SetDefault("gmail.chunk_pause", "100ms")

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-2.5-flash-lite")
	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.max_tokens", 4096)
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.timeout", "60s")

	// Cache defaults
	v.SetDefault("cache.path", "./analysis-cache.db")
}

// setupEnvBinding binds settings to EMAIL_TRIAGE_* environment
// variables.
func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix("EMAIL_TRIAGE")
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server.host":             "SERVER_HOST",
		"server.port":             "SERVER_PORT",
		"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
		"gmail.metadata_max":      "GMAIL_METADATA_MAX",
		"gmail.full_chunk_size":   "GMAIL_FULL_CHUNK_SIZE",
		"gmail.chunk_pause":       "GMAIL_CHUNK_PAUSE",
		"gemini.api_key":          "GEMINI_API_KEY",
		"gemini.model":            "GEMINI_MODEL",
		"gemini.endpoint":         "GEMINI_ENDPOINT",
		"gemini.max_tokens":       "GEMINI_MAX_TOKENS",
		"gemini.temperature":      "GEMINI_TEMPERATURE",
		"gemini.timeout":          "GEMINI_TIMEOUT",
		"cache.path":              "CACHE_PATH",
	}

	for key, env := range envBindings {
		v.BindEnv(key, "EMAIL_TRIAGE_"+env)
	}
}

// loadConfigFile reads an explicit config file or discovers one in the
// working directory. A missing discovered file is not an error.
func loadConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		return v.ReadInConfig()
	}

	v.SetConfigName("email-triage")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Gmail.MetadataMax < 1 || c.Gmail.MetadataMax > 100 {
		return fmt.Errorf("gmail.metadata_max must be between 1 and 100, got %d", c.Gmail.MetadataMax)
	}
	if c.Gmail.FullChunkSize < 1 || c.Gmail.FullChunkSize > 100 {
		return fmt.Errorf("gmail.full_chunk_size must be between 1 and 100, got %d", c.Gmail.FullChunkSize)
	}
	if c.Gmail.ChunkPause < 0 {
		return fmt.Errorf("gmail.chunk_pause must not be negative")
	}

	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.Gemini.Endpoint == "" {
		return fmt.Errorf("gemini.endpoint is required")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini.timeout must be positive")
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}

	return nil
}
