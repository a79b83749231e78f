// Package config handles plyglot configuration loading.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all plyglot configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Provider ProviderConfig `yaml:"provider"`
	Models   ModelsConfig   `yaml:"models"`
	Chat     ChatConfig     `yaml:"chat"`
	// UsageDB enables the append-only usage journal when set to a file path.
	UsageDB  string `yaml:"usage_db"`
	LogLevel string `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig defines completion provider settings.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

// ModelsConfig defines the default model per interaction mode. A client may
// still override the model per message.
type ModelsConfig struct {
	Translation  string `yaml:"translation"`
	Conversation string `yaml:"conversation"`
}

// ChatConfig tunes the session and gateway behavior.
type ChatConfig struct {
	MaxHistoryLength  int     `yaml:"max_history_length"`
	NormalTemperature float32 `yaml:"normal_temperature"`
	PoeticTemperature float32 `yaml:"poetic_temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	ExtendedLanguages bool    `yaml:"extended_languages"`
}

// DefaultSearchPaths returns the config file search order. An explicit path
// (from -config flag) is checked first by FindConfig. Then: ./config.yaml,
// ~/.config/plyglot/config.yaml, /etc/plyglot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "plyglot", "config.yaml"))
	}
	paths = append(paths, "/etc/plyglot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the search paths are tried in order; an empty string
// with nil error means no file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load reads configuration from a YAML file. Environment variables in the
// file body are expanded before parsing, then LoadEnv overrides apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadEnv builds a configuration from defaults plus environment overrides,
// for running without a config file.
func LoadEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// applyEnv applies recognized environment overrides: OPENAIKEY (the
// baseline's variable) or OPENAI_API_KEY for the provider key, and PORT for
// the listen port.
func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAIKEY"); key != "" {
		c.Provider.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = key
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Listen.Port = p
		}
	}
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 3000},
		Models: ModelsConfig{
			Translation:  "gpt-4",
			Conversation: "gpt-4",
		},
		Chat: ChatConfig{
			MaxHistoryLength:  10,
			NormalTemperature: 0.3,
			PoeticTemperature: 0.7,
			MaxTokens:         500,
		},
		LogLevel: "info",
	}
}
