package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Store       StoreConfig       `toml:"store"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	Register    RegisterConfig    `toml:"register"`
	Niconico    NiconicoConfig    `toml:"niconico"`
	Client      ClientConfig      `toml:"client"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Google   GoogleConfig        `toml:"google"`
	Niconico NiconicoCredentials `toml:"niconico"`
}

// GoogleConfig contains Google OAuth2 client credentials.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// NiconicoCredentials are handed to the registration worker; they are never used locally.
type NiconicoCredentials struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StoreConfig selects the record store backend ("sqlite" or "redis").
type StoreConfig struct {
	Driver string `toml:"driver"`
}

// RedisConfig contains redis connection settings for the record store and notification fan-out.
type RedisConfig struct {
	URL       string `toml:"url"`
	KeyPrefix string `toml:"key_prefix"`
	Channel   string `toml:"channel"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	PublicURL      string `toml:"public_url"`
	CallbackSecret string `toml:"callback_secret"`
}

// RegisterConfig points at the asynchronous registration worker.
type RegisterConfig struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NiconicoConfig contains the niconico info/search endpoints.
type NiconicoConfig struct {
	InfoURL   string  `toml:"info_url"`
	SearchURL string  `toml:"search_url"`
	RateLimit float64 `toml:"rate_limit"`
}

// ClientConfig contains settings for CLI commands talking to a running server.
type ClientConfig struct {
	APIURL    string `toml:"api_url"`
	TokenPath string `toml:"token_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, fs.ErrExist)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given dotenv files (missing files are ignored) and overlays NMA_* variables onto config.
func ApplyEnv(config *Config, files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, f, err)
		}
	}

	overrides := []struct {
		key    string
		target *string
	}{
		{"NMA_GOOGLE_CLIENT_ID", &config.Credentials.Google.ClientID},
		{"NMA_GOOGLE_CLIENT_SECRET", &config.Credentials.Google.ClientSecret},
		{"NMA_NICONICO_EMAIL", &config.Credentials.Niconico.Email},
		{"NMA_NICONICO_PASSWORD", &config.Credentials.Niconico.Password},
		{"NMA_CALLBACK_SECRET", &config.Server.CallbackSecret},
		{"NMA_PUBLIC_URL", &config.Server.PublicURL},
		{"NMA_REDIS_URL", &config.Redis.URL},
		{"NMA_STORE_DRIVER", &config.Store.Driver},
		{"NMA_DATABASE_PATH", &config.Database.Path},
		{"NMA_REGISTER_ENDPOINT", &config.Register.Endpoint},
		{"NMA_API_URL", &config.Client.APIURL},
		{"NMA_LOG_LEVEL", &config.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.target = v
		}
	}

	if v, ok := os.LookupEnv("NMA_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: NMA_PORT=%q", ErrInvalidConfig, v)
		}
		config.Server.Port = port
	}

	return nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for the sqlite store", ErrInvalidConfig)
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("%w: redis.url is required for the redis store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	return nil
}
