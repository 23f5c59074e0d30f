package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server struct {
		Port        int `yaml:"port"`
		MetricsPort int `yaml:"metrics_port"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	QR struct {
		Secret string `yaml:"secret"`
	} `yaml:"qr"`

	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Addr       string `yaml:"addr"`
		TTLSeconds int    `yaml:"presence_ttl_seconds"`
	} `yaml:"redis"`

	LogLevel string `yaml:"log_level"`
}

// Load reads a YAML configuration file and fills in defaults for anything
// left unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.MetricsPort = 9090
	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = "campuseats.db"
	cfg.QR.Secret = "dev-handoff-secret"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTLSeconds = 60
	cfg.LogLevel = "info"
	return cfg
}
