package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ManagerConfig is the plugins section of the host configuration.
type ManagerConfig struct {
	PluginDir string                  `yaml:"plugin_dir"`
	Defaults  IsolationPolicy         `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig configures one plugin by name. Entries with a Path are opened
// as shared objects; the rest configure plugins the host registers itself.
type PluginConfig struct {
	Enabled *bool            `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsEnabled treats an omitted flag as enabled.
func (c PluginConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// LoadManagerConfig decodes a standalone plugins file. Unknown keys are
// rejected so that a misspelt policy does not silently widen access.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	if path == "" {
		return ManagerConfig{}, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ManagerConfig{}, fmt.Errorf("read plugin config: %w", err)
	}
	var cfg ManagerConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ManagerConfig{}, fmt.Errorf("decode plugin config %s: %w", path, err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate reports every inconsistency at once, in plugin name order.
func (c ManagerConfig) Validate() error {
	var errs []error
	if err := c.Defaults.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("default policy: %w", err))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Plugins)) {
		entry := c.Plugins[name]
		switch {
		case name == "":
			errs = append(errs, errors.New("plugin name cannot be empty"))
		case entry.Policy != nil:
			if err := entry.Policy.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("plugin %s policy: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// sharedObjects returns enabled entries that name a shared object, keyed by
// plugin name, with relative paths resolved against PluginDir.
func (c ManagerConfig) sharedObjects() map[string]string {
	out := map[string]string{}
	for name, entry := range c.Plugins {
		if !entry.IsEnabled() || entry.Path == "" {
			continue
		}
		path := entry.Path
		if !filepath.IsAbs(path) && c.PluginDir != "" {
			path = filepath.Join(c.PluginDir, path)
		}
		out[name] = path
	}
	return out
}
