// Package config handles configuration loading and validation for hashdrive.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PointerConfig selects where the owner's registry pointer lives.
type PointerConfig struct {
	Backend string `yaml:"backend"` // "file" or "dynamodb"
	// DynamoDB settings, used when backend is "dynamodb".
	Region string `yaml:"region"`
	Table  string `yaml:"table"`
}

// BlobConfig selects how content reaches the storage network.
type BlobConfig struct {
	Backend string `yaml:"backend"`  // "node" or "local"
	NodeURL string `yaml:"node_url"` // storage node API endpoint, e.g. http://127.0.0.1:5001
	Token   string `yaml:"token"`    // bearer token for the node API (optional)
}

// PinConfig holds pinning provider credentials.
type PinConfig struct {
	Provider  string `yaml:"provider"` // provider name, or "local" for no remote pinning
	Endpoint  string `yaml:"endpoint"` // provider API base URL
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// GatewayConfig tunes the gateway optimizer.
type GatewayConfig struct {
	Custom             []string `yaml:"custom"`               // user-added gateway base URLs
	HealthInterval     string   `yaml:"health_interval"`      // duration string, e.g. "5m"
	HealthStartupDelay string   `yaml:"health_startup_delay"` // delay before the first probe cycle
}

// CacheConfig bounds the session content cache.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	MaxAge     string `yaml:"max_age"` // duration string, e.g. "24h"
}

// IdentityConfig configures session token verification.
type IdentityConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// Config is the top-level hashdrive configuration.
type Config struct {
	OwnerID  string         `yaml:"owner_id"`
	DataDir  string         `yaml:"data_dir"` // local state directory (default: ~/.hashdrive)
	LogLevel string         `yaml:"log_level"`
	Pointer  PointerConfig  `yaml:"pointer"`
	Blob     BlobConfig     `yaml:"blob"`
	Pin      PinConfig      `yaml:"pin"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Cache    CacheConfig    `yaml:"cache"`
	Identity IdentityConfig `yaml:"identity"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "~/.hashdrive"
	}
	c.DataDir = expandHome(c.DataDir)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Pointer.Backend == "" {
		c.Pointer.Backend = "file"
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = "local"
	}
	if c.Blob.Backend == "node" && c.Blob.NodeURL == "" {
		c.Blob.NodeURL = "http://127.0.0.1:5001"
	}
	if c.Pin.Provider == "" {
		c.Pin.Provider = "local"
	}
	if c.Gateway.HealthInterval == "" {
		c.Gateway.HealthInterval = "5m"
	}
	if c.Gateway.HealthStartupDelay == "" {
		c.Gateway.HealthStartupDelay = "30s"
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 50
	}
	if c.Cache.MaxAge == "" {
		c.Cache.MaxAge = "24h"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.OwnerID == "" && c.Identity.TokenSecret == "" {
		return fmt.Errorf("either owner_id or identity.token_secret is required")
	}

	switch c.Pointer.Backend {
	case "file":
	case "dynamodb":
		if c.Pointer.Region == "" {
			return fmt.Errorf("pointer.region is required for the dynamodb backend")
		}
		if c.Pointer.Table == "" {
			return fmt.Errorf("pointer.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("pointer.backend must be \"file\" or \"dynamodb\", got %q", c.Pointer.Backend)
	}

	switch c.Blob.Backend {
	case "local":
	case "node":
		if err := checkURL("blob.node_url", c.Blob.NodeURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("blob.backend must be \"node\" or \"local\", got %q", c.Blob.Backend)
	}

	if c.Pin.Provider != "local" {
		if err := checkURL("pin.endpoint", c.Pin.Endpoint); err != nil {
			return err
		}
		if c.Pin.APIKey == "" || c.Pin.APISecret == "" {
			return fmt.Errorf("pin.api_key and pin.api_secret are required for provider %q", c.Pin.Provider)
		}
	}

	for _, gw := range c.Gateway.Custom {
		if err := checkURL("gateway.custom", gw); err != nil {
			return err
		}
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
