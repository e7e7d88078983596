package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/plughost/internal/config/loader"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plughost.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Plugins.EntryPoint != "test" {
		t.Errorf("EntryPoint = %q, want test", cfg.Plugins.EntryPoint)
	}
	if cfg.Runtime.ExecutionTimeout.Std() != 5*time.Second {
		t.Errorf("ExecutionTimeout = %v, want 5s", cfg.Runtime.ExecutionTimeout)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if cfg.Plugins.Root != "plugins" {
		t.Errorf("Root = %q, want default", cfg.Plugins.Root)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[plugins]
root = "/srv/plugins"
load_policy = "abort"

[runtime]
execution_timeout = "250ms"
call_timeout = "2s"

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.Plugins.Root != "/srv/plugins" || cfg.Plugins.LoadPolicy != "abort" {
		t.Errorf("Plugins = %+v", cfg.Plugins)
	}
	if cfg.Plugins.EntryPoint != "test" {
		t.Errorf("EntryPoint = %q, default should survive", cfg.Plugins.EntryPoint)
	}
	if cfg.Runtime.ExecutionTimeout.Std() != 250*time.Millisecond {
		t.Errorf("ExecutionTimeout = %v", cfg.Runtime.ExecutionTimeout)
	}
	if cfg.Runtime.CallTimeout.Std() != 2*time.Second {
		t.Errorf("CallTimeout = %v", cfg.Runtime.CallTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "auto" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[plugins\nroot = 1"},
		{"unknown key", "[plugins]\nrooot = \"x\"\n"},
		{"bad duration", "[runtime]\nexecution_timeout = \"soon\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			var perr *loader.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("error = %v, want *loader.ParseError", err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "[plugins]\nroot = \"/from/file\"\n")

	t.Setenv("PLUGHOST_PLUGIN_ROOT", "/from/env")
	t.Setenv("PLUGHOST_LOAD_POLICY", "ABORT")
	t.Setenv("PLUGHOST_CALL_TIMEOUT", "1m")
	t.Setenv("PLUGHOST_QUEUE_SIZE", "4")
	t.Setenv("PLUGHOST_LOG_FORMAT", "json")
	t.Setenv("PLUGHOST_LOGLEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Plugins.Root != "/from/env" {
		t.Errorf("Root = %q, env should win over file", cfg.Plugins.Root)
	}
	if cfg.Plugins.LoadPolicy != "abort" {
		t.Errorf("LoadPolicy = %q", cfg.Plugins.LoadPolicy)
	}
	if cfg.Runtime.CallTimeout.Std() != time.Minute {
		t.Errorf("CallTimeout = %v", cfg.Runtime.CallTimeout)
	}
	if cfg.Runtime.QueueSize != 4 || cfg.Logging.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.UnknownEnv) != 1 || cfg.UnknownEnv[0] != "PLUGHOST_LOGLEVEL" {
		t.Errorf("UnknownEnv = %v", cfg.UnknownEnv)
	}
}

func TestLoadEnvInvalid(t *testing.T) {
	t.Setenv("PLUGHOST_EXECUTION_TIMEOUT", "forever")

	_, err := Load("")
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("PLUGHOST_LOAD_POLICY", "retry")

	_, err := Load("")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	if verr.Path != "plugins.load_policy" || verr.Rule != "oneof" {
		t.Errorf("ValidationError = %+v", verr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"empty root", func(c *Config) { c.Plugins.Root = "" }, "plugins.root"},
		{"empty entry point", func(c *Config) { c.Plugins.EntryPoint = "" }, "plugins.entry_point"},
		{"negative timeout", func(c *Config) { c.Runtime.ExecutionTimeout = -1 }, "runtime.execution_timeout"},
		{"huge queue", func(c *Config) { c.Runtime.QueueSize = 100000 }, "runtime.queue_size"},
		{"bad limits", func(c *Config) { c.Runtime.Limits = "none" }, "runtime.limits"},
		{"negative output", func(c *Config) { c.Runtime.MaxOutput = -1 }, "runtime.max_output"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Path != tt.path {
				t.Errorf("Path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestSetUnknown(t *testing.T) {
	if err := Default().Set("plugins.colour", "red"); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("Set() error = %v, want ErrUnknownSetting", err)
	}
}

func TestSetLimits(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("runtime.limits", "STRICT"); err != nil {
		t.Fatalf("Set(limits) error = %v", err)
	}
	if err := cfg.Set("runtime.max_output", "2048"); err != nil {
		t.Fatalf("Set(max_output) error = %v", err)
	}
	if cfg.Runtime.Limits != "strict" || cfg.Runtime.MaxOutput != 2048 {
		t.Errorf("Runtime = %+v", cfg.Runtime)
	}
	if err := cfg.Set("runtime.max_output", "lots"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Set(max_output, lots) error = %v, want ErrInvalidValue", err)
	}
}
