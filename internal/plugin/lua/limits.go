package lua

import lua "github.com/yuin/gopher-lua"

// Limits bounds the resources a single VM may use. Exceeding CallStackSize
// or RegistryMaxSize raises a Lua error that surfaces as a *RuntimeError.
//
// The execution timeout is only checked between Lua instructions. A builtin
// such as unpack runs to completion first, so the registry bounds are what
// keep a single builtin call short.
type Limits struct {
	// Maximum depth of nested Lua calls.
	CallStackSize int

	// Initial size of the value stack (registry) in slots.
	RegistrySize int

	// Upper bound the registry may grow to. Zero keeps it at RegistrySize.
	RegistryMaxSize int

	// Slots added each time the registry grows.
	RegistryGrowStep int

	// Bytes of print output forwarded to the logger over the VM's lifetime.
	// Zero means unlimited.
	MaxOutputSize int64
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		CallStackSize:    lua.CallStackSize,
		RegistrySize:     lua.RegistrySize,
		RegistryMaxSize:  16 * lua.RegistrySize,
		RegistryGrowStep: lua.RegistrySize,
		MaxOutputSize:    1 * 1024 * 1024, // 1 MB
	}
}

// StrictLimits returns tighter limits for untrusted plugins.
func StrictLimits() Limits {
	return Limits{
		CallStackSize:    64,
		RegistrySize:     lua.RegistrySize,
		RegistryMaxSize:  4 * lua.RegistrySize,
		RegistryGrowStep: lua.RegistrySize,
		MaxOutputSize:    64 * 1024, // 64 KB
	}
}

// options converts the limits to gopher-lua state options.
func (l Limits) options() lua.Options {
	return lua.Options{
		CallStackSize:       l.CallStackSize,
		RegistrySize:        l.RegistrySize,
		RegistryMaxSize:     l.RegistryMaxSize,
		RegistryGrowStep:    l.RegistryGrowStep,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	}
}
