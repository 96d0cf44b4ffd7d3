package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDir      = "~/.datalens"
	DefaultBaseURL  = "http://localhost:8000"
	DefaultLogLevel = "info"
)

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Stream  string `yaml:"stream"`
}

type Config struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Model   string `yaml:"model"`
	// Timeout is a Go duration string such as "90s".
	Timeout string `yaml:"timeout"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	PrefsDB string `yaml:"prefs_db"`

	// StaleCompletions is "discard" or "apply".
	StaleCompletions string `yaml:"stale_completions"`

	Redis RedisConfig `yaml:"redis"`
}

func Default() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          "90s",
		LogLevel:         DefaultLogLevel,
		LogFile:          filepath.Join(DefaultDir, "datalens.log"),
		PrefsDB:          filepath.Join(DefaultDir, "prefs.db"),
		StaleCompletions: string(chat.StaleDiscard),
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "datalens.chat",
		},
	}
}

// DefaultPath is ~/.datalens/config.yaml, expanded.
func DefaultPath() (string, error) {
	p, err := homedir.Expand(filepath.Join(DefaultDir, "config.yaml"))
	if err != nil {
		return "", errors.Wrap(err, "could not resolve home directory")
	}
	return p, nil
}

// Load reads path (a missing file yields defaults), then a .env file in the
// working directory, then DATALENS_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, errors.Wrapf(err, "could not expand %s", path)
		}
		data, err := os.ReadFile(expanded)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse config %s", expanded)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "failed to read config %s", expanded)
		}
	}

	// .env is optional
	_ = godotenv.Load(".env")
	cfg.applyEnvOverrides()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATALENS_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("DATALENS_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("DATALENS_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("DATALENS_TIMEOUT"); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv("DATALENS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATALENS_STALE_COMPLETIONS"); v != "" {
		c.StaleCompletions = v
	}
	if v := os.Getenv("DATALENS_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LogFile, &c.PrefsDB} {
		if *p == "" || *p == ":memory:" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "could not expand %s", *p)
		}
		*p = expanded
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) StalePolicy() (chat.StalePolicy, error) {
	return chat.ParseStalePolicy(c.StaleCompletions)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url is required")
	}
	if _, err := c.StalePolicy(); err != nil {
		return err
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return errors.Wrapf(err, "invalid timeout %q", c.Timeout)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

// Save writes the config as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrapf(err, "could not expand %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(expanded, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}
