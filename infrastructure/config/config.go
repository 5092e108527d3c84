// Package config reads the client's on-disk configuration. A resolver
// locates the file; Load reads and validates it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the client's inputs: server endpoint, client identity,
// crypto selection, and keepalive cadence.
type Config struct {
	ServerAddress      string `json:"server_address" yaml:"server_address"`
	ServerPort         uint16 `json:"server_port" yaml:"server_port"`
	Identity           string `json:"identity" yaml:"identity"`
	CryptoConfig       string `json:"crypto_config" yaml:"crypto_config"`
	KeepAliveIntervalS uint32 `json:"keepalive_interval_s" yaml:"keepalive_interval_s"`
	InterfaceName      string `json:"interface_name" yaml:"interface_name"`
}

// DefaultInterfaceName names the TUN device when a configuration supplies
// none.
const DefaultInterfaceName = "mesh0"

const DefaultKeepAliveIntervalS = 10

var (
	ErrMissingServerAddress = errors.New("config: server_address is required")
	ErrMissingIdentity      = errors.New("config: identity is required")
	ErrMissingServerPort    = errors.New("config: server_port is required")
)

func (c *Config) applyDefaults() {
	if c.KeepAliveIntervalS == 0 {
		c.KeepAliveIntervalS = DefaultKeepAliveIntervalS
	}
	if c.InterfaceName == "" {
		c.InterfaceName = DefaultInterfaceName
	}
}

func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return ErrMissingServerAddress
	}
	if c.ServerPort == 0 {
		return ErrMissingServerPort
	}
	if c.Identity == "" {
		return ErrMissingIdentity
	}
	return nil
}

func (c Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalS) * time.Second
}

// Load reads and validates a configuration file at path. The format is
// selected by extension: ".yaml"/".yml" is parsed with yaml.v3, anything
// else (including ".json" and no extension) with encoding/json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
