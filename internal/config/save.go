package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileName is the config file looked up in the working and config directories.
const fileName = "config.yaml"

// Marshal encodes the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Save writes the config to the user's config directory and returns the path
// it wrote.
func (c *Config) Save() (string, error) {
	path := filepath.Join(ConfigDir(), fileName)
	return path, c.SaveTo(path)
}

// SaveTo writes the config to path. Invalid settings are not written, so a
// saved file always loads.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
