package lua

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// library is one opened Lua standard library.
type library struct {
	name string
	open lua.LGFunction
}

// standardLibraries is the fixed capability set every plugin is compiled
// against and run with. io, os, debug, package and channel are never opened.
var standardLibraries = []library{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
	{lua.CoroutineLibName, lua.OpenCoroutine},
}

// removedGlobals are base library functions that could load code from disk
// or strings, or reach the package system.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
	"_printregs",
}

// requirableModules may be returned by the sandboxed require.
var requirableModules = map[string]bool{
	lua.TabLibName:       true,
	lua.StringLibName:    true,
	lua.MathLibName:      true,
	lua.CoroutineLibName: true,
}

// Sandbox restricts a Lua state to the standard capability set.
type Sandbox struct {
	L *lua.LState

	// print output destination; nil discards
	logger *slog.Logger
	plugin string

	maxOutput int64
	written   int64
	truncated bool
}

// NewSandbox creates a new sandbox for the Lua state.
// Output written with print is logged at debug level with the plugin name.
func NewSandbox(L *lua.LState, logger *slog.Logger, plugin string) *Sandbox {
	return &Sandbox{
		L:      L,
		logger: logger,
		plugin: plugin,
	}
}

// newSandboxedState creates a Lua state sized by limits with the standard
// capability set installed.
func newSandboxedState(logger *slog.Logger, plugin string, limits Limits) *lua.LState {
	L := lua.NewState(limits.options())
	sb := NewSandbox(L, logger, plugin)
	sb.maxOutput = limits.MaxOutputSize
	sb.Install()
	return L
}

// Install opens the standard libraries and applies the restrictions.
func (s *Sandbox) Install() {
	for _, lib := range standardLibraries {
		s.L.Push(s.L.NewFunction(lib.open))
		s.L.Push(lua.LString(lib.name))
		s.L.Call(1, 0)
	}

	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.installPrint()
	s.installRequire()
}

// installPrint routes print to the logger instead of stdout. Once the output
// budget is spent, further output is dropped and a single warning is logged.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		if s.logger == nil || s.truncated {
			return 0
		}
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		text := strings.Join(parts, "\t")

		if s.maxOutput > 0 && s.written+int64(len(text)) > s.maxOutput {
			s.truncated = true
			s.logger.Warn("plugin output limit reached, dropping further output",
				"plugin", s.plugin, "limit", s.maxOutput)
			return 0
		}
		s.written += int64(len(text))
		s.logger.Debug("plugin output", "plugin", s.plugin, "text", text)
		return 0
	}))
}

// installRequire replaces require with a version that only returns modules
// already opened by Install. Nothing is ever loaded from disk.
func (s *Sandbox) installRequire() {
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !requirableModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))
}
