// Package config provides the read-only key-value configuration surface the
// rest of zealnet consumes. The core never loads config from a specific
// source by itself — it depends on the Provider interface so an embedder can
// hand in whatever backing store it likes. LoadYAML/LoadEnv below are the
// default loader this repository ships, built the way la2go loads its own
// YAML config files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider is a read-only key-value configuration source. Consumers ask for
// typed values with a default; Provider implementations never error — an
// absent or malformed key simply yields the default.
type Provider interface {
	String(key, def string) string
	Int(key string, def int) int
	Bool(key string, def bool) bool
}

// Map is the default Provider: a flat string-keyed map loaded from YAML and
// optionally overlaid with process environment variables.
type Map struct {
	values map[string]string
}

// NewMap wraps an already-flattened key-value map as a Provider.
func NewMap(values map[string]string) *Map {
	if values == nil {
		values = map[string]string{}
	}
	return &Map{values: values}
}

// Load reads a YAML document at path into a flat key-value Provider. Nested
// YAML maps are flattened with "." as the separator (e.g. server.tcp.enabled).
// A missing file is not an error — it yields an empty provider so defaults
// apply everywhere, matching the teacher's Load*/Default* fallback pattern.
func Load(path string) (*Map, error) {
	values := map[string]string{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMap(values), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	flatten("", raw, values)

	return NewMap(values), nil
}

// LoadWithEnv behaves like Load but additionally overlays a dotenv file (if
// present) onto the process environment, then lets any environment variable
// whose name matches a flattened key (upper-cased, "." replaced with "_")
// override the YAML value. This is the algrv-server pattern: yaml for
// checked-in defaults, .env for local/deployment overrides.
func LoadWithEnv(yamlPath, envPath string) (*Map, error) {
	if err := godotenv.Overload(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading env overlay %s: %w", envPath, err)
	}

	m, err := Load(yamlPath)
	if err != nil {
		return nil, err
	}
	m.overlayEnv()
	return m, nil
}

func (m *Map) overlayEnv() {
	for key := range m.values {
		envKey := envName(key)
		if v, ok := os.LookupEnv(envKey); ok {
			m.values[key] = v
		}
	}
}

func envName(key string) string {
	out := make([]byte, 0, len(key))
	for _, r := range key {
		switch {
		case r == '.':
			out = append(out, '_')
		case r >= 'a' && r <= 'z':
			out = append(out, byte(r-'a'+'A'))
		default:
			out = append(out, byte(r))
		}
	}
	return string(out)
}

func flatten(prefix string, raw map[string]any, out map[string]string) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
}

// String returns the value for key, or def if absent.
func (m *Map) String(key, def string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Int returns the value for key parsed as an integer, or def if absent or
// unparsable.
func (m *Map) Int(key string, def int) int {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the value for key parsed as a boolean, or def if absent or
// unparsable.
func (m *Map) Bool(key string, def bool) bool {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
