package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderOverride replaces the model list or endpoint of a registered provider.
type ProviderOverride struct {
	Models  []string `yaml:"models"`
	BaseURL string   `yaml:"base_url"`
}

type ProvidersFile struct {
	Providers map[string]ProviderOverride `yaml:"providers"`
}

// LoadProvidersFile reads a YAML provider override file. An empty path yields no overrides.
func LoadProvidersFile(path string) (map[string]ProviderOverride, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var pf ProvidersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	return pf.Providers, nil
}
