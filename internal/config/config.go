package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the minimum accepted JWT secret length in bytes.
const MinSecretLength = 32

// Config represents the complete supportdesk configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Model    ModelConfig    `yaml:"model" toml:"model"`
	Agent    AgentConfig    `yaml:"agent" toml:"agent"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr" toml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`
	RequestTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	RequestTimeoutRaw  string `yaml:"request_timeout" toml:"request_timeout"`
}

// DatabaseConfig holds the Postgres connection settings. An empty URL
// selects the in-memory stores.
type DatabaseConfig struct {
	URL         string `yaml:"url" toml:"url"`
	MaxConns    int32  `yaml:"max_conns" toml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate" toml:"auto_migrate"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Issuer    string `yaml:"issuer" toml:"issuer"`
	Audience  string `yaml:"audience" toml:"audience"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// ModelConfig selects and tunes the language model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"`
	Name        string  `yaml:"name" toml:"name"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens" toml:"max_tokens"`
	Stream      bool    `yaml:"stream" toml:"stream"`
}

// AgentConfig tunes the order agent.
type AgentConfig struct {
	MaxSteps          int    `yaml:"max_steps" toml:"max_steps"`
	HistoryWindow     int    `yaml:"history_window" toml:"history_window"`
	SearchLimit       int    `yaml:"search_limit" toml:"search_limit"`
	Marker            string `yaml:"marker" toml:"marker"`
	Currency          string `yaml:"currency" toml:"currency"`
	InstructionFile   string `yaml:"instruction_file" toml:"instruction_file"`
	ThreadMaxMessages int    `yaml:"thread_max_messages" toml:"thread_max_messages"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Providers supported by ModelConfig.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  2 * time.Minute,
		},
		Database: DatabaseConfig{MaxConns: 10},
		Auth: AuthConfig{
			Issuer:   "supportdesk",
			TokenTTL: time.Hour,
		},
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 4096,
		},
		Agent: AgentConfig{
			MaxSteps:          12,
			HistoryWindow:     40,
			SearchLimit:       5,
			Marker:            "ORDER CREATED",
			Currency:          "USD",
			ThreadMaxMessages: 200,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file, expands ${VAR} references, parses
// durations, applies environment fallbacks and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, data string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(data, cfg)
		return err
	default:
		return yaml.Unmarshal([]byte(data), cfg)
	}
}

// ApplyEnv fills empty secrets and the database URL from the environment
// (DATABASE_URL, SUPPORTDESK_JWT_SECRET).
func (c *Config) ApplyEnv() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("SUPPORTDESK_JWT_SECRET")
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if len(c.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength)
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("model.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Model.Provider)
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}

	if c.Agent.MaxSteps < 2 {
		return fmt.Errorf("agent.max_steps must be at least 2")
	}

	if c.Agent.SearchLimit < 1 {
		return fmt.Errorf("agent.search_limit must be at least 1")
	}

	if len(c.Agent.Currency) != 3 {
		return fmt.Errorf("agent.currency must be a 3-letter ISO code")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"server.request_timeout", cfg.Server.RequestTimeoutRaw, &cfg.Server.RequestTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// LoadInstruction returns the contents of Agent.InstructionFile, or "" when
// none is configured.
func (c *Config) LoadInstruction() (string, error) {
	if c.Agent.InstructionFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Agent.InstructionFile)
	if err != nil {
		return "", fmt.Errorf("reading instruction file: %w", err)
	}
	return string(data), nil
}
