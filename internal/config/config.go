package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iishyfishyy/calais/internal/completion"
)

const (
	ConfigDirName  = ".calais"
	ConfigFileName = "config.yaml"
	HintsDirName   = "hints"
)

// Environment variables that override the file.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvModel   = "CALAIS_MODEL"
	EnvBaseURL = "OPENAI_BASE_URL"
)

const (
	DefaultModel       = "gpt-4o"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3
)

// ErrMissingAPIKey is returned by Validate when no credential is configured.
var ErrMissingAPIKey = errors.New("Please set the OPENAI_API_KEY environment variable to your OpenAI API key, or run 'calais configure'")

// Duration is a time.Duration written as a string such as "1s" or "500ms".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Retry holds the retry settings.
type Retry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	BaseDelay      Duration `yaml:"base_delay"`
	Multiplier     float64  `yaml:"multiplier"`
	MaxDelay       Duration `yaml:"max_delay"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
	MaxEmptyChunks int      `yaml:"max_empty_chunks"`
}

// Config represents the application configuration
type Config struct {
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	// PolicyFile replaces the built-in system prompt when set.
	PolicyFile string `yaml:"policy_file,omitempty"`

	Retry Retry `yaml:"retry"`

	// UnsafePatterns are extra substrings that make a command unsafe.
	UnsafePatterns []string `yaml:"unsafe_patterns,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	p := completion.DefaultPolicy()
	return &Config{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		Retry: Retry{
			MaxAttempts:    p.MaxAttempts,
			BaseDelay:      Duration(p.BaseDelay),
			Multiplier:     p.Multiplier,
			MaxDelay:       Duration(p.MaxDelay),
			IdleTimeout:    Duration(p.IdleTimeout),
			MaxEmptyChunks: p.MaxEmptyChunks,
		},
	}
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetHintsDir returns the directory holding user hint documents
func GetHintsDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, HintsDirName), nil
}

// Load reads the configuration from path, or from the default location when
// path is empty. A missing file yields the defaults. Environment variables
// are applied on top.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFile is Load without the environment overrides. Use it for
// configurations that will be saved back.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
}

// Validate checks that the configuration can be used to make requests.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return errors.New("no model configured")
	}
	if c.Retry.MaxAttempts < 0 || c.MaxTokens < 0 {
		return errors.New("max_attempts and max_tokens must not be negative")
	}
	return nil
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() completion.RetryPolicy {
	return completion.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      time.Duration(c.Retry.BaseDelay),
		Multiplier:     c.Retry.Multiplier,
		MaxDelay:       time.Duration(c.Retry.MaxDelay),
		IdleTimeout:    time.Duration(c.Retry.IdleTimeout),
		MaxEmptyChunks: c.Retry.MaxEmptyChunks,
	}
}

// Save writes the configuration to path, or to the default location when
// path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold an API key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if a configuration file exists
func Exists(path string) (bool, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return false, err
		}
		path = p
	}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
