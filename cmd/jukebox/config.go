package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/venue-jukebox/pkg/client"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is the CLI configuration loaded from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Watch   WatchConfig   `toml:"watch"`
}

type APIConfig struct {
	Host         string `toml:"host"`
	BaseURL      string `toml:"base_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

type SessionConfig struct {
	Path string `toml:"path"`
}

type WatchConfig struct {
	TrackInterval duration `toml:"track_interval"`
	TokenInterval duration `toml:"token_interval"`
}

// duration lets TOML values like "5s" decode into a time.Duration.
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads a TOML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// DefaultConfig returns the embedded example configuration.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

func (c *Config) ClientOptions() client.Options {
	return client.Options{
		Host:         client.HostType(c.API.Host),
		BaseURL:      c.API.BaseURL,
		ClientID:     c.API.ClientID,
		ClientSecret: c.API.ClientSecret,
	}
}

// SessionPath expands a leading ~ to the home directory.
func (c *Config) SessionPath() string {
	path := c.Session.Path
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rest)
		}
	}
	return path
}
