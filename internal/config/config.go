package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEndpoint is used when AI_API_URL is not set.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Config holds application configuration
type Config struct {
	Provider ProviderConfig
	Server   ServerConfig
	Storage  StorageConfig

	LogDir string `env:"CHAT_LOG_DIR" envDefault:"logs"`
	Debug  bool   `env:"CHAT_DEBUG"`
}

// ProviderConfig points the completion client at a chat-completion API.
// Without an API key the client answers in demo mode.
type ProviderConfig struct {
	Endpoint string `env:"AI_API_URL" envDefault:"https://api.openai.com/v1/chat/completions"`
	APIKey   string `env:"AI_API_KEY"`
}

// Enabled reports whether a remote provider may be called.
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// ServerConfig describes the HTTP surface
type ServerConfig struct {
	Addr      string `env:"PORT" envDefault:"3000"`
	StaticDir string `env:"STATIC_DIR" envDefault:"frontend"`
}

// StorageConfig selects where the conversation is persisted
type StorageConfig struct {
	DBPath     string `env:"CHAT_DB_PATH" envDefault:"assistchat.db"`
	HistoryKey string `env:"CHAT_HISTORY_KEY" envDefault:"ai_chat_history"`
	Memory     bool   `env:"CHAT_MEMORY_STORE"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize trims values and validates the ones that can be wrong.
func (c *Config) Normalize() error {
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	c.Provider.Endpoint = strings.TrimSpace(c.Provider.Endpoint)
	if c.Provider.Endpoint == "" {
		c.Provider.Endpoint = DefaultEndpoint
	}
	if u, err := url.Parse(c.Provider.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid AI_API_URL value %q", c.Provider.Endpoint)
	}

	addr, err := normalizeAddr(c.Server.Addr)
	if err != nil {
		return err
	}
	c.Server.Addr = addr
	return nil
}

// normalizeAddr accepts "3000", ":3000" or "127.0.0.1:3000".
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3000"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}
