package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file over the defaults, expands environment
// variables, applies ESP32OTA_* overrides and validates the result.
//
// A missing file is an error unless optional is true, in which case only the
// defaults and the environment apply.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && optional:
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", path)
	default:
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any ESP32OTA_* variables that are set,
// e.g. ESP32OTA_DEVICE_NAME or ESP32OTA_LINK_RECONNECT_DELAY.
// Unset variables leave the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}
	return writeFile(path, data)
}

// RememberDevice stores name as device.name in the file at path. Every other
// value, comment and ${VAR} reference in the file is kept as written.
// The file is created if missing.
func RememberDevice(path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{}}}
	}
	root := doc.Content[0]
	if root.Kind == 0 || root.Tag == "!!null" {
		*root = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("invalid config %s: top level is not a mapping", path)
	}

	device, err := mappingChild(root, "device", yaml.MappingNode)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	value, err := mappingChild(device, "name", yaml.ScalarNode)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	if value.Value == name {
		return nil
	}
	value.Tag = "!!str"
	value.Value = name

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}
	return writeFile(path, out)
}

// mappingChild returns the value node for key, appending an empty node of
// the given kind when the key is absent.
func mappingChild(m *yaml.Node, key string, kind yaml.Kind) (*yaml.Node, error) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		v := m.Content[i+1]
		if v.Kind == yaml.ScalarNode && v.Tag == "!!null" && kind == yaml.MappingNode {
			*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		if v.Kind != kind {
			return nil, fmt.Errorf("%s has an unexpected type", key)
		}
		return v, nil
	}

	v := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		v.Tag = "!!map"
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config file %q: %w", path, err)
	}
	return nil
}
