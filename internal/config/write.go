package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders cfg as YAML.
func MarshalYAML(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// GenerateDefaultConfigFile writes the default configuration to filename
// (digito.yaml when empty). Existing files are only replaced with force.
func GenerateDefaultConfigFile(filename string, force bool) (string, error) {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if _, err := os.Stat(filename); err == nil && !force {
		return "", fmt.Errorf("config file already exists: %s", filename)
	}
	cfg := DefaultConfig()
	data, err := MarshalYAML(&cfg)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return filename, nil
}
