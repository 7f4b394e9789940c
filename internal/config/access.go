package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath returns the resolved value at a dot-notation path such as
// "directory.cache.ttl". An empty path returns the whole document.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := node[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
