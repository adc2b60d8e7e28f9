// Package config loads tool configuration from a YAML file with
// environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the shared configuration of the lab tools.
type Config struct {
	Brain struct {
		BaseURL     string  `yaml:"base_url"`
		Username    string  `yaml:"username"`
		Password    string  `yaml:"password"`
		MaxRetries  int     `yaml:"max_retries"`
		RateLimit   float64 `yaml:"rate_limit"`
		Concurrency int     `yaml:"concurrency"`
	} `yaml:"brain"`

	LLM struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"llm"`

	Storage struct {
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxConns    int    `yaml:"max_conns"`
	} `yaml:"storage"`

	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`

	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.Brain.MaxRetries = 3
	cfg.Brain.RateLimit = 4
	cfg.Brain.Concurrency = 3
	cfg.Storage.MaxConns = 4
	cfg.Output.Dir = "results"
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty) and
// then applies environment overrides. Credentials in the environment
// always win over the file, so files can be committed without
// secrets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WQ_USERNAME"); v != "" {
		cfg.Brain.Username = v
	}
	if v := os.Getenv("WQ_PASSWORD"); v != "" {
		cfg.Brain.Password = v
	}
	if v := os.Getenv("WQ_BASE_URL"); v != "" {
		cfg.Brain.BaseURL = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
}

// Validate checks that the fields every tool needs are present.
func (c Config) Validate() error {
	if c.Brain.Username == "" || c.Brain.Password == "" {
		return fmt.Errorf("config: platform credentials missing (set WQ_USERNAME and WQ_PASSWORD)")
	}
	return nil
}
