// Package main is the entry point for plughost.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dshills/plughost/internal/app"
	"github.com/dshills/plughost/internal/plugin"
	plua "github.com/dshills/plughost/internal/plugin/lua"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliOptions struct {
	app     app.Options
	json    bool
	version bool
	command string
	args    []string
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "plughost %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	// Commands that do not start the runner.
	switch opts.command {
	case "schema":
		return runSchema(stdout, stderr)
	case "check":
		return runCheck(opts.args, stdout, stderr)
	case "list", "invoke":
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", opts.command)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts.app.LogOutput = stderr
	application, err := app.New(ctx, opts.app)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure cleanup on all exit paths
	defer application.Shutdown(context.Background())

	if opts.command == "list" {
		return runList(ctx, application, opts.json, stdout, stderr)
	}
	return runInvoke(ctx, application, opts.args, stdout, stderr)
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("plughost", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.app.ConfigPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.app.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.app.PluginRoot, "plugins", "", "Plugin root directory")
	fs.StringVar(&opts.app.PluginRoot, "p", "", "Plugin root directory (shorthand)")
	fs.StringVar(&opts.app.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.json, "json", false, "Print list output as JSON")
	fs.BoolVar(&opts.version, "version", false, "Show version information")
	fs.BoolVar(&opts.version, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "plughost - sandboxed Lua plugin host\n\n")
		fmt.Fprintf(stderr, "Usage: plughost [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  list                  List loaded plugin manifests\n")
		fmt.Fprintf(stderr, "  invoke <index> <arg>  Call a plugin's entry point\n")
		fmt.Fprintf(stderr, "  check <dir>...        Validate plugin directories without running them\n")
		fmt.Fprintf(stderr, "  schema                Print the manifest JSON schema\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  plughost -plugins ./plugins list\n")
		fmt.Fprintf(stderr, "  plughost invoke 0 42\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.version {
		return opts, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return nil, errors.New("missing command")
	}
	opts.command = rest[0]
	opts.args = rest[1:]
	return opts, nil
}

func runSchema(stdout, stderr io.Writer) int {
	data, err := plugin.ManifestSchema()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}

// runCheck validates each directory's manifest and scripts and prints the
// diagnostics.
func runCheck(dirs []string, stdout, stderr io.Writer) int {
	if len(dirs) == 0 {
		fmt.Fprintf(stderr, "Error: check needs at least one plugin directory\n")
		return 2
	}

	code := 0
	for _, dir := range dirs {
		m, err := plugin.LoadManifest(dir)
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", dir, err)
			code = 1
			continue
		}

		unit, diags, err := plua.Compile(dir)
		if rerr := diags.Render(stdout); rerr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", rerr)
			return 1
		}
		if err != nil {
			var cerr *plua.CompileError
			if !errors.As(err, &cerr) || len(cerr.Diagnostics) == 0 {
				fmt.Fprintf(stdout, "%s: %v\n", dir, err)
			}
			code = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: ok (%s; %s)\n", dir, m.Name, strings.Join(unit.Sources(), ", "))
	}
	return code
}

func runList(ctx context.Context, application *app.Application, asJSON bool, stdout, stderr io.Writer) int {
	manifests, err := application.Bridge().ListManifests(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(manifests); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	for i, m := range manifests {
		fmt.Fprintf(stdout, "%d\t%s\t%s\n", i, m.Name, m.Description)
		fmt.Fprintf(stdout, "\tauthors: %s\n", strings.Join(m.Authors, ", "))
		for _, it := range m.Items {
			fmt.Fprintf(stdout, "\titem: %s x%d\n", it.Name, it.Quantity)
		}
	}
	for _, f := range application.Failures() {
		fmt.Fprintf(stderr, "skipped %s: %v\n", f.Dir, f.Err)
	}
	return 0
}

func runInvoke(ctx context.Context, application *app.Application, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "Error: invoke needs <index> <arg>\n")
		return 2
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid index %q\n", args[0])
		return 2
	}
	arg, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid argument %q\n", args[1])
		return 2
	}

	result, err := application.Bridge().Invoke(ctx, index, arg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, result)
	return 0
}
