package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/plughost/internal/config/loader"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "PLUGHOST_"

// Config is the complete plughost configuration.
type Config struct {
	Plugins PluginsConfig `toml:"plugins"`
	Runtime RuntimeConfig `toml:"runtime"`
	Logging LoggingConfig `toml:"logging"`

	// Source is the config file that was read, empty when none was found.
	Source string `toml:"-"`
	// UnknownEnv lists prefixed environment variables that map to nothing.
	UnknownEnv []string `toml:"-"`
}

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	Root       string `toml:"root" validate:"required"`
	LoadPolicy string `toml:"load_policy" validate:"oneof=skip abort"`
	EntryPoint string `toml:"entry_point" validate:"required"`
}

// RuntimeConfig controls plugin execution and the host bridge.
type RuntimeConfig struct {
	ExecutionTimeout Duration `toml:"execution_timeout" validate:"gte=0"`
	CallTimeout      Duration `toml:"call_timeout" validate:"gte=0"`
	QueueSize        int      `toml:"queue_size" validate:"gte=0,lte=4096"`
	Limits           string   `toml:"limits" validate:"oneof=default strict"`
	MaxOutput        int64    `toml:"max_output" validate:"gte=0"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json auto"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// String returns the duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Plugins: PluginsConfig{
			Root:       "plugins",
			LoadPolicy: "skip",
			EntryPoint: "test",
		},
		Runtime: RuntimeConfig{
			ExecutionTimeout: Duration(5 * time.Second),
			CallTimeout:      0,
			QueueSize:        16,
			Limits:           "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// envMapping binds variable names (without EnvPrefix) to setting paths.
var envMapping = map[string]string{
	"PLUGIN_ROOT":       "plugins.root",
	"LOAD_POLICY":       "plugins.load_policy",
	"ENTRY_POINT":       "plugins.entry_point",
	"EXECUTION_TIMEOUT": "runtime.execution_timeout",
	"CALL_TIMEOUT":      "runtime.call_timeout",
	"QUEUE_SIZE":        "runtime.queue_size",
	"LIMITS":            "runtime.limits",
	"MAX_OUTPUT":        "runtime.max_output",
	"LOG_LEVEL":         "logging.level",
	"LOG_FORMAT":        "logging.format",
}

// Load resolves the configuration from defaults, the TOML file at path and
// the environment, then validates it. An empty path or a missing file
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		found, err := loader.NewTOMLLoader(path, loader.WithStrict(true)).Load(cfg)
		if err != nil {
			return nil, err
		}
		if found {
			cfg.Source = path
		}
	}

	overrides, unknown := loader.NewEnvLoader(EnvPrefix, envMapping).Load()
	for _, o := range overrides {
		if err := cfg.Set(o.Path, o.Value); err != nil {
			return nil, fmt.Errorf("%s: %w", o.Env, err)
		}
	}
	cfg.UnknownEnv = unknown

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Set assigns a setting from its string form.
func (c *Config) Set(path, value string) error {
	switch path {
	case "plugins.root":
		c.Plugins.Root = value
	case "plugins.load_policy":
		c.Plugins.LoadPolicy = strings.ToLower(value)
	case "plugins.entry_point":
		c.Plugins.EntryPoint = value
	case "runtime.execution_timeout":
		return setDuration(&c.Runtime.ExecutionTimeout, path, value)
	case "runtime.call_timeout":
		return setDuration(&c.Runtime.CallTimeout, path, value)
	case "runtime.queue_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, path, value)
		}
		c.Runtime.QueueSize = n
	case "runtime.limits":
		c.Runtime.Limits = strings.ToLower(value)
	case "runtime.max_output":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, path, value)
		}
		c.Runtime.MaxOutput = n
	case "logging.level":
		c.Logging.Level = strings.ToLower(value)
	case "logging.format":
		c.Logging.Format = strings.ToLower(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, path)
	}
	return nil
}

func setDuration(d *Duration, path, value string) error {
	if err := d.UnmarshalText([]byte(value)); err != nil {
		return fmt.Errorf("%w for %s: %q", ErrInvalidValue, path, value)
	}
	return nil
}

// validate is shared; building a validator is expensive.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every setting against its constraints. The first
// failure is returned as a *ValidationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Path:  strings.TrimPrefix(fe.Namespace(), "Config."),
			Rule:  fe.ActualTag(),
			Value: fe.Value(),
		}
	}
	return err
}
