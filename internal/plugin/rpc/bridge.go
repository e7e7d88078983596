package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/plugin"
)

// Bridge is the caller side of the channel pair. It is safe for concurrent
// use; calls are serialized so at most one command is in flight.
type Bridge struct {
	ch          *Channels
	callTimeout time.Duration
	logger      *slog.Logger

	// callMu is held from sending a command until its response is received.
	callMu    sync.Mutex
	closed    bool
	desynced  bool
	closeOnce sync.Once
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithCallTimeout bounds each call, including the wait for the runner to
// accept the command. Zero waits for ever.
func WithCallTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.callTimeout = d
	}
}

// WithBridgeLogger sets the bridge's logger.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge creates a bridge sending on ch. The bridge becomes the only
// sender on ch.Inbound.
func NewBridge(ch *Channels, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		ch:     ch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invoke calls the entry point of the plugin at index with arg.
//
// Plugin numbers are float64, so arg and the result must lie within
// [plua.MinInteger, plua.MaxInteger] (plus or minus 2^53). Values outside
// that range, such as math.MaxInt64, fail with a *RuntimeError instead of
// being rounded.
//
// An index outside the registry returns a *plugin.IndexError and a plugin
// fault returns a *RuntimeError; both leave the bridge usable.
func (b *Bridge) Invoke(ctx context.Context, index int, arg int64) (int64, error) {
	cmd := InvokeCommand{ID: uuid.New(), Index: index, Arg: arg}

	resp, err := b.call(ctx, cmd)
	if err != nil {
		return 0, err
	}

	switch r := resp.(type) {
	case IntegerResult:
		if r.Index != index {
			return 0, &ProtocolError{Op: kind(cmd), Got: kind(resp), Err: fmt.Errorf("%w: index %d", ErrUnexpectedResponse, r.Index)}
		}
		return r.Value, nil
	case RuntimeErrorResult:
		return 0, &RuntimeError{Index: index, Message: r.Message}
	case IndexErrorResult:
		return 0, &plugin.IndexError{Index: r.Index, Len: r.Len}
	default:
		return 0, &ProtocolError{Op: kind(cmd), Got: kind(resp), Err: ErrUnexpectedResponse}
	}
}

// ListManifests returns copies of every manifest in registry order.
func (b *Bridge) ListManifests(ctx context.Context) ([]plugin.Manifest, error) {
	cmd := ListManifestsCommand{ID: uuid.New()}

	resp, err := b.call(ctx, cmd)
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case ManifestList:
		return r.Manifests, nil
	case RuntimeErrorResult:
		return nil, &RuntimeError{Index: r.Index, Message: r.Message}
	default:
		return nil, &ProtocolError{Op: kind(cmd), Got: kind(resp), Err: ErrUnexpectedResponse}
	}
}

// call sends cmd and waits for the response carrying its ID.
func (b *Bridge) call(ctx context.Context, cmd Command) (Response, error) {
	op := kind(cmd)

	b.callMu.Lock()
	defer b.callMu.Unlock()

	if b.closed {
		return nil, &ProtocolError{Op: op, Err: ErrClosed}
	}
	if b.desynced {
		return nil, &ProtocolError{Op: op, Err: ErrDesynchronized}
	}

	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	// A response while sending means the runner answered something we never
	// asked; a closed Outbound means the runner is gone.
	select {
	case b.ch.Inbound <- cmd:
	case resp, ok := <-b.ch.Outbound:
		if !ok {
			return nil, &ProtocolError{Op: op, Err: ErrClosed}
		}
		b.desynced = true
		return nil, &ProtocolError{Op: op, Got: kind(resp), Err: ErrUnexpectedResponse}
	case <-ctx.Done():
		return nil, b.contextError(ctx, op)
	}

	select {
	case resp, ok := <-b.ch.Outbound:
		if !ok {
			return nil, &ProtocolError{Op: op, Err: ErrClosed}
		}
		if resp == nil || resp.ResponseID() != cmd.CommandID() {
			b.desynced = true
			b.logger.Error("response does not match command", "command", op, "id", cmd.CommandID(), "response", kind(resp))
			return nil, &ProtocolError{Op: op, Got: kind(resp), Err: fmt.Errorf("%w: correlation id mismatch", ErrUnexpectedResponse)}
		}
		return resp, nil
	case <-ctx.Done():
		b.desynced = true
		b.logger.Warn("abandoned call after sending", "command", op, "id", cmd.CommandID(), "error", ctx.Err())
		return nil, b.contextError(ctx, op)
	}
}

func (b *Bridge) contextError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("rpc %s: %w: %w", op, ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("rpc %s: %w", op, ctx.Err())
}

// Close closes Inbound, which stops the runner once it has drained the
// queue. It waits for an in-flight call and is safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.closed = true
		close(b.ch.Inbound)
	})
	return nil
}
