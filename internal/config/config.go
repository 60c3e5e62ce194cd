// Package config loads the tool configuration from a TOML file, with
// defaults when no file exists and environment overrides on top.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Client   ClientConfig   `toml:"client"`
	Output   OutputConfig   `toml:"output"`
	Metadata MetadataConfig `toml:"metadata"`
}

type ClientConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type OutputConfig struct {
	Format string `toml:"format"`
}

type MetadataConfig struct {
	Path string `toml:"path"`
}

func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:        "https://api.elevenlabs.io",
			TimeoutSeconds: 300,
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

func Load() (*Config, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Default(), nil
		}
		configDir = filepath.Join(home, ".config")
	}
	return LoadFrom(filepath.Join(configDir, "speechcli", "config.toml"))
}

func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPEECHCLI_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("SPEECHCLI_METADATA"); v != "" {
		c.Metadata.Path = v
	}
	if v := os.Getenv("SPEECHCLI_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("SPEECHCLI_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Client.TimeoutSeconds = secs
		}
	}
}

// Timeout is the ceiling for one whole call, retries included.
func (c *Config) Timeout() time.Duration {
	if c.Client.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// ResolveMetadataPath finds the method metadata document: explicit flag,
// then environment/config (via ApplyEnv), then the working directory.
func (c *Config) ResolveMetadataPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if c.Metadata.Path != "" {
		return c.Metadata.Path
	}
	return "sdk-methods.json"
}
