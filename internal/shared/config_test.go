package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./nma.db" {
			t.Errorf("expected database path ./nma.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Store.Driver != "sqlite" {
			t.Errorf("expected sqlite store driver, got %s", config.Store.Driver)
		}

		if config.Credentials.Google.RedirectURI != "http://localhost:3000/callback" {
			t.Errorf("expected google redirect uri http://localhost:3000/callback, got %s", config.Credentials.Google.RedirectURI)
		}

		if config.Niconico.RateLimit != 2.0 {
			t.Errorf("expected niconico rate limit 2.0, got %v", config.Niconico.RateLimit)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[store]
driver = "redis"

[redis]
url = "redis://localhost:6379/0"

[server]
host = "0.0.0.0"
port = 9000

[credentials.google]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:3000/callback"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9000 {
			t.Errorf("expected server port 9000, got %d", config.Server.Port)
		}

		if config.Credentials.Google.ClientID != "test_client_id" {
			t.Errorf("expected google client_id test_client_id, got %s", config.Credentials.Google.ClientID)
		}

		if config.Niconico.InfoURL == "" {
			t.Error("expected keys missing from the file to keep their defaults")
		}

		if err := config.Validate(); err != nil {
			t.Errorf("expected redis config to validate, got %v", err)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("LoadConfig Invalid TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[server\nport = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv("NMA_GOOGLE_CLIENT_SECRET", "from-env")
		t.Setenv("NMA_STORE_DRIVER", "redis")
		t.Setenv("NMA_PORT", "9999")

		config := DefaultConfig()
		if err := ApplyEnv(config); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}

		if config.Credentials.Google.ClientSecret != "from-env" {
			t.Errorf("expected secret from env, got %s", config.Credentials.Google.ClientSecret)
		}
		if config.Store.Driver != "redis" {
			t.Errorf("expected redis driver from env, got %s", config.Store.Driver)
		}
		if config.Server.Port != 9999 {
			t.Errorf("expected port 9999 from env, got %d", config.Server.Port)
		}
	})

	t.Run("Dotenv File", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envPath, []byte("NMA_CALLBACK_SECRET=dotenv-secret\n"), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Cleanup(func() { os.Unsetenv("NMA_CALLBACK_SECRET") })

		config := DefaultConfig()
		if err := ApplyEnv(config, envPath); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}
		if config.Server.CallbackSecret != "dotenv-secret" {
			t.Errorf("expected secret from dotenv, got %s", config.Server.CallbackSecret)
		}
	})

	t.Run("Missing Dotenv File Is Ignored", func(t *testing.T) {
		config := DefaultConfig()
		if err := ApplyEnv(config, filepath.Join(t.TempDir(), "nope.env")); err != nil {
			t.Errorf("expected missing dotenv file to be ignored, got %v", err)
		}
	})

	t.Run("Invalid Port", func(t *testing.T) {
		t.Setenv("NMA_PORT", "eighty")
		err := ApplyEnv(DefaultConfig())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tc := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "dynamo" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "redis without url", mutate: func(c *Config) { c.Store.Driver = "redis"; c.Redis.URL = "" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
