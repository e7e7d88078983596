package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/plugin"
	plua "github.com/dshills/plughost/internal/plugin/lua"
	"github.com/dshills/plughost/internal/plugin/rpc"
)

func writePlugin(t *testing.T, root, name, authors, script string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := "name = \"" + name + "\"\ndescription = \"\"\nicon = \"\"\n" + authors + "items = []\n"
	if err := os.WriteFile(filepath.Join(dir, "plugin.toml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.lua"), []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestApp(t *testing.T, opts Options) *Application {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = &bytes.Buffer{}
	}
	app, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { app.Shutdown(context.Background()) })
	return app
}

func TestApplicationInvoke(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "alpha", "authors = [\"a\"]\n", `function test(x) return x + 100 end`)
	writePlugin(t, root, "beta", "", `function test(x) return x end`)

	app := newTestApp(t, Options{PluginRoot: root})

	failures := app.Failures()
	if len(failures) != 1 || filepath.Base(failures[0].Dir) != "beta" {
		t.Fatalf("Failures() = %v, want beta", failures)
	}
	if !errors.Is(failures[0].Err, plugin.ErrMissingField) {
		t.Errorf("failure = %v, want ErrMissingField", failures[0].Err)
	}

	ctx := context.Background()
	manifests, err := app.Bridge().ListManifests(ctx)
	if err != nil {
		t.Fatalf("ListManifests() error = %v", err)
	}
	if len(manifests) != 1 || manifests[0].Name != "alpha" {
		t.Errorf("ListManifests() = %v", manifests)
	}

	got, err := app.Bridge().Invoke(ctx, 0, 1)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 101 {
		t.Errorf("Invoke() = %d, want 101", got)
	}

	if _, err := app.Bridge().Invoke(ctx, 1, 1); !errors.Is(err, plugin.ErrIndex) {
		t.Errorf("Invoke(1) error = %v, want ErrIndex", err)
	}

	if stats := app.Stats(); stats.Commands != 3 {
		t.Errorf("Stats().Commands = %d, want 3", stats.Commands)
	}
}

func TestApplicationConfigFile(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "alpha", "authors = [\"a\"]\n", `function run(x) return -x end`)

	cfgPath := filepath.Join(t.TempDir(), "plughost.toml")
	content := "[plugins]\nroot = \"" + filepath.ToSlash(root) + "\"\nentry_point = \"run\"\n\n[logging]\nformat = \"json\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t, Options{ConfigPath: cfgPath})
	if app.Config().Plugins.EntryPoint != "run" {
		t.Errorf("EntryPoint = %q", app.Config().Plugins.EntryPoint)
	}

	got, err := app.Bridge().Invoke(context.Background(), 0, 5)
	if err != nil || got != -5 {
		t.Errorf("Invoke() = %d, %v, want -5", got, err)
	}
}

func TestApplicationAbortPolicy(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "alpha", "authors = [\"a\"]\n", `function test(x) return x end`)
	writePlugin(t, root, "beta", "", `function test(x) return x end`)

	t.Setenv("PLUGHOST_LOAD_POLICY", "abort")

	_, err := New(context.Background(), Options{PluginRoot: root, LogOutput: &bytes.Buffer{}})
	var ierr *InitError
	if !errors.As(err, &ierr) || ierr.Component != "plugins" {
		t.Fatalf("error = %v, want plugins InitError", err)
	}
	if !errors.Is(err, plugin.ErrManifest) {
		t.Errorf("error = %v, want ErrManifest", err)
	}
}

func TestApplicationInitErrors(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		component string
		target    error
	}{
		{
			"missing root",
			Options{PluginRoot: filepath.Join(t.TempDir(), "missing")},
			"plugins",
			plugin.ErrRootNotFound,
		},
		{
			"bad log level",
			Options{PluginRoot: t.TempDir(), LogLevel: "loud"},
			"config",
			config.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.LogOutput = &bytes.Buffer{}
			_, err := New(context.Background(), tt.opts)

			var ierr *InitError
			if !errors.As(err, &ierr) {
				t.Fatalf("error = %v, want *InitError", err)
			}
			if ierr.Component != tt.component {
				t.Errorf("Component = %q, want %q", ierr.Component, tt.component)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestApplicationShutdown(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "alpha", "authors = [\"a\"]\n", `function test(x) return x end`)

	app, err := New(context.Background(), Options{PluginRoot: root, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	if _, err := app.Bridge().Invoke(context.Background(), 0, 1); !errors.Is(err, rpc.ErrClosed) {
		t.Errorf("Invoke after Shutdown error = %v, want ErrClosed", err)
	}
}

func TestVMLimits(t *testing.T) {
	rc := config.Default().Runtime
	if got := vmLimits(rc); got != plua.DefaultLimits() {
		t.Errorf("vmLimits(default) = %+v", got)
	}

	rc.Limits = "strict"
	rc.MaxOutput = 99
	got := vmLimits(rc)
	if got.CallStackSize != plua.StrictLimits().CallStackSize {
		t.Errorf("CallStackSize = %d, want strict preset", got.CallStackSize)
	}
	if got.MaxOutputSize != 99 {
		t.Errorf("MaxOutputSize = %d, want 99", got.MaxOutputSize)
	}
}
