package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds a single call into a VM, including the run
// of a unit's top-level chunks at instantiation.
const DefaultExecutionTimeout = 5 * time.Second

// VM is a virtual-machine instance: a sandboxed Lua state with a Unit loaded.
//
// IMPORTANT: gopher-lua's LState is not goroutine-safe and VM adds no
// locking. A VM must be owned by a single goroutine.
type VM struct {
	L *lua.LState

	executionTimeout time.Duration
	limits           Limits
	logger           *slog.Logger
	name             string

	closed bool
}

// VMOption configures a VM.
type VMOption func(*VM)

// WithExecutionTimeout sets the deadline applied to each call. Zero disables it.
// The deadline is checked between Lua instructions, so a call blocked inside
// a Go function is not interrupted.
func WithExecutionTimeout(d time.Duration) VMOption {
	return func(vm *VM) {
		vm.executionTimeout = d
	}
}

// WithLimits sets the VM's stack and output limits.
func WithLimits(limits Limits) VMOption {
	return func(vm *VM) {
		vm.limits = limits
	}
}

// WithLogger sets the logger receiving the plugin's print output.
func WithLogger(logger *slog.Logger) VMOption {
	return func(vm *VM) {
		vm.logger = logger
	}
}

// WithName sets the plugin name attached to log records.
func WithName(name string) VMOption {
	return func(vm *VM) {
		vm.name = name
	}
}

// Instantiate binds unit to a fresh sandboxed state and runs its top-level
// chunks in load order. The returned VM is ready for Invoke.
func Instantiate(ctx context.Context, unit *Unit, opts ...VMOption) (*VM, error) {
	if unit == nil {
		return nil, ErrNilUnit
	}

	vm := &VM{
		executionTimeout: DefaultExecutionTimeout,
		limits:           DefaultLimits(),
		name:             unit.dir,
	}
	for _, opt := range opts {
		opt(vm)
	}

	vm.L = newSandboxedState(vm.logger, vm.name, vm.limits)

	for i, proto := range unit.protos {
		fn := vm.L.NewFunctionFromProto(proto)
		if _, err := vm.call(ctx, vm.L, fn, unit.sources[i], 0); err != nil {
			vm.L.Close()
			return nil, err
		}
	}
	return vm, nil
}

// hasFunction returns true if name is a global function.
func (vm *VM) hasFunction(name string) bool {
	if vm.closed {
		return false
	}
	return vm.L.GetGlobal(name).Type() == lua.LTFunction
}

// Invoke calls the global function fn with one integer argument and coerces
// its first result to an integer. The call runs on a cloned handle of the
// state: a new Lua thread sharing the plugin's globals with its own stack.
//
// Every failure is returned as a *RuntimeError; the VM stays usable.
func (vm *VM) Invoke(ctx context.Context, fn string, arg int64) (int64, error) {
	if vm.closed {
		return 0, ErrStateClosed
	}

	larg, err := FromInteger(arg)
	if err != nil {
		return 0, &RuntimeError{Function: fn, Message: "argument: " + err.Error(), Err: err}
	}

	fv := vm.L.GetGlobal(fn)
	if fv == lua.LNil {
		return 0, &RuntimeError{Function: fn, Message: "function not defined"}
	}
	if fv.Type() != lua.LTFunction {
		return 0, &RuntimeError{Function: fn, Message: fmt.Sprintf("not a function (got %s)", fv.Type())}
	}

	thread, cancel := vm.L.NewThread()
	if cancel != nil {
		defer cancel()
	}

	ret, err := vm.call(ctx, thread, fv.(*lua.LFunction), fn, 1, larg)
	if err != nil {
		return 0, err
	}

	n, err := ToInteger(ret)
	if err != nil {
		return 0, &RuntimeError{Function: fn, Message: "result: " + err.Error(), Err: err}
	}
	return n, nil
}

// call runs fn on L under the execution timeout and returns its first result
// when nret is 1.
func (vm *VM) call(ctx context.Context, L *lua.LState, fn *lua.LFunction, name string, nret int, args ...lua.LValue) (ret lua.LValue, err error) {
	if vm.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, vm.executionTimeout)
		defer cancel()
	}
	if ctx.Done() != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	top := L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			L.SetTop(top)
			ret, err = nil, &RuntimeError{Function: name, Message: fmt.Sprintf("lua panic: %v", r)}
		}
	}()

	if callErr := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); callErr != nil {
		L.SetTop(top)
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, &RuntimeError{Function: name, Message: "execution timed out", Err: ErrExecutionTimeout}
			}
			return nil, &RuntimeError{Function: name, Message: ctxErr.Error(), Err: ctxErr}
		}
		return nil, &RuntimeError{Function: name, Message: errorMessage(callErr)}
	}

	if nret == 0 {
		return nil, nil
	}
	ret = L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// errorMessage extracts the script's error value without the stack trace.
func errorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (vm *VM) Close() error {
	if vm.closed {
		return nil
	}
	vm.L.Close()
	vm.closed = true
	return nil
}
