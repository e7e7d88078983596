package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	plua "github.com/dshills/plughost/internal/plugin/lua"
)

// LoadPolicy selects how discovery reacts to a plugin that fails to load.
type LoadPolicy int

const (
	// PolicySkip records the failure and keeps loading the remaining plugins.
	PolicySkip LoadPolicy = iota

	// PolicyAbort fails discovery on the first plugin that does not load.
	PolicyAbort
)

// String returns a string representation of the policy.
func (p LoadPolicy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ParseLoadPolicy parses "skip" or "abort". The empty string is PolicySkip.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return PolicySkip, fmt.Errorf("unknown load policy %q", s)
	}
}

// LoadedPlugin is a plugin that passed every load stage. Its index is stable
// for the life of the registry.
type LoadedPlugin struct {
	Index       int
	Manifest    Manifest
	Dir         string
	Diagnostics plua.Diagnostics // warnings reported by the compiler

	unit *plua.Unit
	vm   *plua.VM
}

// Invoke calls fn in the plugin's VM. It must only be called from the
// goroutine that owns the registry.
func (p *LoadedPlugin) Invoke(ctx context.Context, fn string, arg int64) (int64, error) {
	return p.vm.Invoke(ctx, fn, arg)
}

// Unit returns the plugin's compiled scripts.
func (p *LoadedPlugin) Unit() *plua.Unit {
	return p.unit
}

// LoadFailure records a plugin directory that was skipped during discovery.
type LoadFailure struct {
	Dir string
	Err error
}

// Registry is the ordered, immutable set of plugins loaded from a root
// directory. It is not safe for concurrent use: the registry and its VMs
// belong to one goroutine.
type Registry struct {
	root     string
	plugins  []*LoadedPlugin
	failures []LoadFailure
	closed   bool
}

type discoverConfig struct {
	policy           LoadPolicy
	entryPoint       string
	executionTimeout time.Duration
	limits           plua.Limits
	logger           *slog.Logger
}

// RegistryOption configures discovery.
type RegistryOption func(*discoverConfig)

// WithLoadPolicy sets the load failure policy.
func WithLoadPolicy(p LoadPolicy) RegistryOption {
	return func(c *discoverConfig) {
		c.policy = p
	}
}

// WithEntryPoint sets the function every plugin is expected to define.
func WithEntryPoint(name string) RegistryOption {
	return func(c *discoverConfig) {
		c.entryPoint = name
	}
}

// WithExecutionTimeout bounds each call into a plugin VM.
func WithExecutionTimeout(d time.Duration) RegistryOption {
	return func(c *discoverConfig) {
		c.executionTimeout = d
	}
}

// WithLimits sets the stack and output limits of every plugin VM.
func WithLimits(limits plua.Limits) RegistryOption {
	return func(c *discoverConfig) {
		c.limits = limits
	}
}

// WithLogger sets the logger for discovery and plugin output.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(c *discoverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Discover loads every plugin directory directly under root. Each candidate
// goes through manifest loading, compilation and instantiation; indices are
// assigned in discovery order over the plugins that succeed.
func Discover(ctx context.Context, root string, opts ...RegistryOption) (*Registry, error) {
	cfg := discoverConfig{
		policy:           PolicySkip,
		entryPoint:       plua.DefaultEntryPoint,
		executionTimeout: plua.DefaultExecutionTimeout,
		limits:           plua.DefaultLimits(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("read plugin root: %w", err)
	}

	reg := &Registry{root: root}

	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if !isDir(dir, entry) {
			continue
		}

		if err := ctx.Err(); err != nil {
			reg.Close()
			return nil, err
		}

		p, err := loadPlugin(ctx, dir, len(reg.plugins), &cfg)
		if err != nil {
			if cfg.policy == PolicyAbort {
				reg.Close()
				return nil, err
			}
			cfg.logger.Warn("skipping plugin", "dir", dir, "error", err)
			reg.failures = append(reg.failures, LoadFailure{Dir: dir, Err: err})
			continue
		}

		cfg.logger.Info("plugin loaded", "index", p.Index, "name", p.Manifest.Name, "dir", dir,
			"scripts", p.Unit().Sources())
		reg.plugins = append(reg.plugins, p)
	}

	return reg, nil
}

// isDir reports whether a root entry is a plugin directory candidate.
// Symlinks are followed.
func isDir(path string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// loadPlugin runs the load stages for one directory.
func loadPlugin(ctx context.Context, dir string, index int, cfg *discoverConfig) (*LoadedPlugin, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Stage: "manifest", Err: err}
	}

	unit, diags, err := plua.Compile(dir, plua.WithEntryPoint(cfg.entryPoint))
	if err != nil {
		return nil, &LoadError{Dir: dir, Stage: "compile", Err: err}
	}
	for _, d := range diags.Warnings() {
		cfg.logger.Warn("script diagnostic", "plugin", manifest.Name, "diagnostic", d.String())
	}

	vm, err := plua.Instantiate(ctx, unit,
		plua.WithExecutionTimeout(cfg.executionTimeout),
		plua.WithLimits(cfg.limits),
		plua.WithLogger(cfg.logger),
		plua.WithName(manifest.Name),
	)
	if err != nil {
		return nil, &LoadError{Dir: dir, Stage: "instantiate", Err: err}
	}

	return &LoadedPlugin{
		Index:       index,
		Manifest:    *manifest,
		Dir:         dir,
		Diagnostics: diags,
		unit:        unit,
		vm:          vm,
	}, nil
}

// Root returns the directory the registry was discovered from.
func (r *Registry) Root() string {
	return r.root
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	return len(r.plugins)
}

// Plugin returns the plugin at index i.
func (r *Registry) Plugin(i int) (*LoadedPlugin, error) {
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if i < 0 || i >= len(r.plugins) {
		return nil, &IndexError{Index: i, Len: len(r.plugins)}
	}
	return r.plugins[i], nil
}

// Manifests returns copies of every manifest in registry order.
func (r *Registry) Manifests() []Manifest {
	out := make([]Manifest, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = *p.Manifest.Clone()
	}
	return out
}

// Failures returns the plugins skipped during discovery.
func (r *Registry) Failures() []LoadFailure {
	out := make([]LoadFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Close releases every plugin VM. It is safe to call more than once.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, p := range r.plugins {
		if err := p.vm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Manifest.Name, err))
		}
	}
	return errors.Join(errs...)
}
