package web3

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Default  string                       `yaml:"default"`
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition lists the provider endpoints that make up one network.
type NetworkDefinition struct {
	Providers      []string `yaml:"providers"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Description    string   `yaml:"description"`
}

// Timeout returns the configured per-call timeout, or fallback when unset.
func (d NetworkDefinition) Timeout(fallback time.Duration) time.Duration {
	if d.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}
	return ParseNetworkDefinitions(content)
}

// ParseNetworkDefinitions decodes network metadata from YAML content.
func ParseNetworkDefinitions(content []byte) (NetworkDefinitions, error) {
	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}
