// Package lua provides the Lua runtime integration for the plugin host.
//
// This package wraps the gopher-lua library to provide:
//   - A fixed, sandboxed standard capability set shared by every plugin
//   - The script compiler that turns a plugin directory into a Unit
//   - Virtual machine instances bound to a compiled Unit
//   - Integer coercion between the host and Lua numbers
//
// # Compiling
//
// Every file with the ScriptExt extension in a plugin directory is parsed and
// compiled. Errors are reported as Diagnostics and prevent a Unit from being
// produced:
//
//	unit, diags, err := lua.Compile("plugins/alpha")
//	if err != nil {
//	    var cerr *lua.CompileError
//	    if errors.As(err, &cerr) {
//	        cerr.Diagnostics.Render(os.Stderr)
//	    }
//	    return err
//	}
//
// # Running
//
// A VM binds a Unit to a fresh sandboxed state. Each call runs on a cloned
// handle of the state (a Lua thread sharing the plugin's globals) so a failed
// call never leaves the state half-modified:
//
//	vm, err := lua.Instantiate(ctx, unit)
//	if err != nil {
//	    return err
//	}
//	defer vm.Close()
//
//	n, err := vm.Invoke(ctx, "test", 42)
//
// A VM is not goroutine-safe. The plugin host keeps every VM on a single
// worker goroutine.
//
// # Sandbox
//
// The sandbox opens only the base, table, string, math and coroutine
// libraries, removes the functions that load code from disk or strings, and
// replaces require with a version that only returns already-opened modules.
//
// # Integers
//
// Lua numbers are float64. Values cross the host boundary as int64 but only
// the range [MinInteger, MaxInteger] is carried exactly; anything outside it
// is rejected instead of being silently rounded.
package lua
