package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API  APIConfig  `yaml:"api"`
	Log  LogConfig  `yaml:"log"`
	Stub StubConfig `yaml:"stub"`
}

type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TokenFile      string `yaml:"token_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StubConfig configures the local development backend
type StubConfig struct {
	Port             int        `yaml:"port"`
	JWTSecret        string     `yaml:"jwt_secret"`
	TokenExpireHours int        `yaml:"token_expire_hours"`
	Users            []StubUser `yaml:"users"`
}

// StubUser is an account pre-seeded into the development backend
type StubUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied, for use when no
// config file exists on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000"
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 60
	}
	if c.API.TokenFile == "" {
		c.API.TokenFile = defaultTokenFile()
	}
	if c.Stub.Port == 0 {
		c.Stub.Port = 8000
	}
	if c.Stub.JWTSecret == "" {
		c.Stub.JWTSecret = "dev-secret"
	}
	if c.Stub.TokenExpireHours == 0 {
		c.Stub.TokenExpireHours = 24
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".legalai-token"
	}
	return filepath.Join(home, ".legalai", "token")
}
