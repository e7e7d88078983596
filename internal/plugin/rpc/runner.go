package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/plugin"
	plua "github.com/dshills/plughost/internal/plugin/lua"
)

// Stats counts the commands a Runner has served.
type Stats struct {
	Commands      uint64
	Invocations   uint64
	RuntimeErrors uint64
	IndexErrors   uint64
}

// Runner executes commands against a registry on a single goroutine.
//
// The registry passed to NewRunner is owned by the runner from then on: it
// must not be used elsewhere and is closed when Run returns.
type Runner struct {
	reg *plugin.Registry
	ch  *Channels

	logger           *slog.Logger
	entryPoint       string
	executionTimeout time.Duration

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	commands      atomic.Uint64
	invocations   atomic.Uint64
	runtimeErrors atomic.Uint64
	indexErrors   atomic.Uint64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEntryPoint sets the function invoked by InvokeCommand.
func WithEntryPoint(name string) RunnerOption {
	return func(r *Runner) {
		r.entryPoint = name
	}
}

// WithExecutionTimeout bounds each invocation. Zero leaves only the VM's own
// timeout in place. The deadline is observed between Lua instructions, so a
// long builtin call finishes before the timeout is reported; see plua.Limits.
func WithExecutionTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.executionTimeout = d
	}
}

// NewRunner creates a runner serving reg over ch.
func NewRunner(reg *plugin.Registry, ch *Channels, opts ...RunnerOption) *Runner {
	r := &Runner{
		reg:              reg,
		ch:               ch,
		logger:           slog.Default(),
		entryPoint:       plua.DefaultEntryPoint,
		executionTimeout: plua.DefaultExecutionTimeout,
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run serves commands until Inbound is closed or ctx is cancelled. On return
// the registry is closed, Outbound is closed and Done is signalled.
// It returns nil when Inbound was closed and ctx.Err() otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.stop()

	r.logger.Debug("runner started", "plugins", r.reg.Len(), "entry_point", r.entryPoint)

	for {
		r.setState(StateAwaitingCommand)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-r.ch.Inbound:
			if !ok {
				return nil
			}

			r.setState(StateExecuting)
			resp := r.dispatch(ctx, cmd)

			select {
			case r.ch.Outbound <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// stop releases everything the runner owns.
func (r *Runner) stop() {
	r.setState(StateStopped)
	if err := r.reg.Close(); err != nil {
		r.logger.Error("failed to close registry", "error", err)
	}
	close(r.ch.Outbound)
	close(r.done)
	r.logger.Debug("runner stopped", "commands", r.commands.Load())
}

// dispatch executes one command and builds its response. Panics become
// runtime error responses.
func (r *Runner) dispatch(ctx context.Context, cmd Command) (resp Response) {
	r.commands.Add(1)

	var id uuid.UUID
	index := -1
	if cmd != nil {
		id = cmd.CommandID()
	}
	if c, ok := cmd.(InvokeCommand); ok {
		index = c.Index
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.runtimeErrors.Add(1)
			r.logger.Error("command panicked", "id", id, "command", kind(cmd), "panic", rec)
			resp = RuntimeErrorResult{ID: id, Index: index, Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	switch c := cmd.(type) {
	case InvokeCommand:
		return r.invoke(ctx, c)
	case ListManifestsCommand:
		return ManifestList{ID: c.ID, Manifests: r.reg.Manifests()}
	default:
		r.runtimeErrors.Add(1)
		return RuntimeErrorResult{ID: id, Index: index, Message: fmt.Sprintf("unsupported command %s", kind(cmd))}
	}
}

func (r *Runner) invoke(ctx context.Context, c InvokeCommand) Response {
	r.invocations.Add(1)

	p, err := r.reg.Plugin(c.Index)
	if err != nil {
		var ierr *plugin.IndexError
		if errors.As(err, &ierr) {
			r.indexErrors.Add(1)
			return IndexErrorResult{ID: c.ID, Index: c.Index, Len: ierr.Len}
		}
		r.runtimeErrors.Add(1)
		return RuntimeErrorResult{ID: c.ID, Index: c.Index, Message: err.Error()}
	}

	if r.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.executionTimeout)
		defer cancel()
	}

	v, err := p.Invoke(ctx, r.entryPoint, c.Arg)
	if err != nil {
		r.runtimeErrors.Add(1)
		r.logger.Warn("plugin invocation failed", "id", c.ID, "index", c.Index, "plugin", p.Manifest.Name, "error", err)
		return RuntimeErrorResult{ID: c.ID, Index: c.Index, Message: err.Error()}
	}
	return IntegerResult{ID: c.ID, Index: c.Index, Value: v}
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// State returns the runner's current state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Done is closed once the runner has stopped.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Commands:      r.commands.Load(),
		Invocations:   r.invocations.Load(),
		RuntimeErrors: r.runtimeErrors.Load(),
		IndexErrors:   r.indexErrors.Load(),
	}
}
