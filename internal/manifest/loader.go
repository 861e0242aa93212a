package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML manifest descriptor from path and loads it.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a YAML manifest descriptor, expanding ${VAR} environment
// references first, then validates it.
func Load(data []byte) (*Manifest, error) {
	expanded := os.ExpandEnv(string(data))

	var m Manifest
	if err := yaml.Unmarshal([]byte(expanded), &m); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
