package loader

import (
	"os"
	"sort"
	"strings"
)

// EnvLoader collects configuration overrides from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "PLUGHOST_")
	mapping map[string]string // Env var suffix -> config path
}

// NewEnvLoader creates a loader for the given prefix and mapping. Mapping
// keys are variable names without the prefix.
func NewEnvLoader(prefix string, mapping map[string]string) *EnvLoader {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &EnvLoader{
		prefix:  prefix,
		mapping: m,
	}
}

// Prefix returns the variable prefix.
func (l *EnvLoader) Prefix() string {
	return l.prefix
}

// AddMapping adds a variable mapping.
func (l *EnvLoader) AddMapping(name, configPath string) {
	l.mapping[name] = configPath
}

// Override is one environment variable bound to a config path.
type Override struct {
	Env   string
	Path  string
	Value string
}

// Load returns the overrides for every mapped variable that is set, sorted
// by config path. Empty values count as set. Unmapped prefixed variables
// are reported separately so callers can warn about typos.
func (l *EnvLoader) Load() (overrides []Override, unknown []string) {
	for name, path := range l.mapping {
		env := l.prefix + name
		if val, ok := os.LookupEnv(env); ok {
			overrides = append(overrides, Override{Env: env, Path: path, Value: val})
		}
	}
	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].Path < overrides[j].Path
	})

	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if _, mapped := l.mapping[strings.TrimPrefix(name, l.prefix)]; !mapped {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)

	return overrides, unknown
}
