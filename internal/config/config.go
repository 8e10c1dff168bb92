package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Relay   RelayConfig   `yaml:"relay"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	Port int    `yaml:"port" env:"PORT"`
	Host string `yaml:"host" env:"HOST"`
}

type StorageConfig struct {
	// Path of the SQLite event log. Empty disables persistence entirely
	// (relay-only mode).
	Path      string `yaml:"path" env:"DB_PATH"`
	UploadDir string `yaml:"upload_dir" env:"UPLOAD_DIR"`
}

type RelayConfig struct {
	// SendBuffer bounds each connection's outbound queue; a peer that falls
	// this far behind starts losing frames.
	SendBuffer int `yaml:"send_buffer" env:"SEND_BUFFER"`
	// PersistQueue bounds the events waiting for the store worker.
	PersistQueue int `yaml:"persist_queue" env:"PERSIST_QUEUE"`
}

type AuthConfig struct {
	Token          string   `yaml:"token" env:"AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Path:      "proctor.db",
			UploadDir: "uploads",
		},
		Relay: RelayConfig{
			SendBuffer:   64,
			PersistQueue: 256,
		},
	}
}

// Load reads the YAML config at path and applies environment overrides on
// top. A missing file is not an error (env-only deployments); an unreadable
// or malformed file is.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
