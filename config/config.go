// Package config is the process configuration collaborator: a yaml file
// flattened into dotted keys with optional defaults. The engine itself keeps
// no global state; callers load a Config and pass values down explicitly.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoKey is returned by GetValue for a key the config does not hold.
var ErrNoKey = errors.New("no such config key")

// Config is an immutable view of one loaded config file.
type Config struct {
	values map[string]interface{}
}

// Load reads a yaml config file, expanding ${VAR} environment references and
// flattening nested mappings into dotted keys ("db.root").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	c := &Config{values: map[string]interface{}{}}
	c.flatten("", raw)
	return c, nil
}

func (c *Config) flatten(prefix string, m map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			c.flatten(key, sub)
			continue
		}
		c.values[key] = v
	}
}

// GetValue returns the value stored at key, or ErrNoKey.
func (c *Config) GetValue(key string) (interface{}, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrNoKey)
	}
	return v, nil
}

// GetValueDefault returns the value stored at key, or def when absent.
func (c *Config) GetValueDefault(key string, def interface{}) interface{} {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// GetString returns the string at key, or def when absent or not a string.
func (c *Config) GetString(key, def string) string {
	if s, ok := c.values[key].(string); ok {
		return s
	}
	return def
}

// GetInt returns the integer at key, or def when absent or not an integer.
func (c *Config) GetInt(key string, def int) int {
	switch v := c.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// GetBool returns the boolean at key, or def when absent or not a boolean.
func (c *Config) GetBool(key string, def bool) bool {
	if b, ok := c.values[key].(bool); ok {
		return b
	}
	return def
}
