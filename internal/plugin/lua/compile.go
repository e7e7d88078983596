package lua

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// ScriptExt is the extension of plugin script files.
const ScriptExt = ".lua"

// DefaultEntryPoint is the global function the host invokes.
const DefaultEntryPoint = "test"

// Unit is the compiled, loadable program produced from a plugin's scripts.
// A Unit holds no Lua state and may be instantiated any number of times.
type Unit struct {
	dir     string
	sources []string
	protos  []*lua.FunctionProto
	globals map[string]bool
}

// Dir returns the plugin directory the unit was compiled from.
func (u *Unit) Dir() string {
	return u.dir
}

// Sources returns the chunk names in load order.
func (u *Unit) Sources() []string {
	return append([]string(nil), u.sources...)
}

// defines returns true if some source assigns a global function named name
// at top level. This is a static check; a script may still define globals
// dynamically.
func (u *Unit) defines(name string) bool {
	return u.globals[name]
}

// compiler holds compile options.
type compiler struct {
	entryPoint string
}

// CompileOption configures Compile.
type CompileOption func(*compiler)

// WithEntryPoint sets the entry function checked for by the compiler.
// An empty name disables the check.
func WithEntryPoint(name string) CompileOption {
	return func(c *compiler) {
		c.entryPoint = name
	}
}

// Compile compiles every ScriptExt file directly inside dir into a Unit.
// Files are loaded in lexical name order. Diagnostics are returned even on
// success so warnings can be surfaced; any error-severity diagnostic yields a
// *CompileError and no Unit.
func Compile(dir string, opts ...CompileOption) (*Unit, Diagnostics, error) {
	c := &compiler{entryPoint: DefaultEntryPoint}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &CompileError{Dir: dir, Err: fmt.Errorf("reading plugin directory: %w", err)}
	}

	unit := &Unit{
		dir:     dir,
		globals: make(map[string]bool),
	}
	var diags Diagnostics

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ScriptExt {
			continue
		}

		chunkName := filepath.Join(filepath.Base(dir), entry.Name())
		proto, fileDiags := c.compileFile(filepath.Join(dir, entry.Name()), chunkName, unit.globals)
		diags = append(diags, fileDiags...)
		unit.sources = append(unit.sources, chunkName)
		if proto != nil {
			unit.protos = append(unit.protos, proto)
		}
	}

	if len(unit.sources) == 0 {
		return nil, nil, &CompileError{Dir: dir, Err: ErrNoScripts}
	}

	if diags.HasErrors() {
		return nil, diags, &CompileError{Dir: dir, Diagnostics: diags, Err: ErrCompile}
	}

	if c.entryPoint != "" && !unit.defines(c.entryPoint) {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			File:     filepath.Base(dir),
			Message:  fmt.Sprintf("no source defines global function %q", c.entryPoint),
		})
	}

	return unit, diags, nil
}

// compileFile parses and compiles a single script.
func (c *compiler) compileFile(path, chunkName string, globals map[string]bool) (*lua.FunctionProto, Diagnostics) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Diagnostics{{Severity: SeverityError, File: chunkName, Message: err.Error()}}
	}

	chunk, err := parse.Parse(bytes.NewReader(data), chunkName)
	if err != nil {
		return nil, Diagnostics{parseDiagnostic(chunkName, err)}
	}

	var diags Diagnostics
	if len(chunk) == 0 {
		diags = append(diags, Diagnostic{Severity: SeverityWarning, File: chunkName, Message: "script is empty"})
	}
	collectGlobalFunctions(chunk, globals)

	proto, err := compileChunk(chunk, chunkName)
	if err != nil {
		d := Diagnostic{Severity: SeverityError, File: chunkName, Message: err.Error()}
		var cerr *lua.CompileError
		if errors.As(err, &cerr) {
			d.Line = cerr.Line
			d.Message = cerr.Message
		}
		return nil, append(diags, d)
	}

	return proto, diags
}

// compileChunk compiles a parsed chunk, recovering from compiler panics that
// are not reported as *lua.CompileError.
func compileChunk(chunk []ast.Stmt, name string) (proto *lua.FunctionProto, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compiler panic: %v", r)
		}
	}()
	return lua.Compile(chunk, name)
}

// parseDiagnostic converts a parser error into a diagnostic.
func parseDiagnostic(chunkName string, err error) Diagnostic {
	d := Diagnostic{Severity: SeverityError, File: chunkName}

	var perr *parse.Error
	if !errors.As(err, &perr) {
		d.Message = strings.TrimSpace(err.Error())
		return d
	}

	d.Message = perr.Message
	if perr.Token != "" {
		d.Message = fmt.Sprintf("%s near '%s'", perr.Message, perr.Token)
	}
	if perr.Pos.Line == parse.EOF {
		d.Message += " at end of file"
	} else {
		d.Line = perr.Pos.Line
		d.Column = perr.Pos.Column
	}
	return d
}

// collectGlobalFunctions records top-level global function definitions:
// `function name(...)` and `name = function(...)`.
func collectGlobalFunctions(chunk []ast.Stmt, globals map[string]bool) {
	for _, stmt := range chunk {
		switch s := stmt.(type) {
		case *ast.FuncDefStmt:
			if s.Name == nil || s.Name.Receiver != nil {
				continue
			}
			if ident, ok := s.Name.Func.(*ast.IdentExpr); ok {
				globals[ident.Value] = true
			}
		case *ast.AssignStmt:
			for i, lhs := range s.Lhs {
				ident, ok := lhs.(*ast.IdentExpr)
				if !ok || i >= len(s.Rhs) {
					continue
				}
				if _, ok := s.Rhs[i].(*ast.FunctionExpr); ok {
					globals[ident.Value] = true
				}
			}
		}
	}
}
