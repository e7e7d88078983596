// Package rpc connects callers on any goroutine to a plugin registry owned
// by a single worker goroutine.
//
// The worker side is a Runner: it receives one Command at a time from
// Channels.Inbound, executes it against the registry, and answers with
// exactly one Response on Channels.Outbound. The caller side is a Bridge:
// it stamps each Command with a correlation ID, holds a call lock across the
// send and the matching receive, and maps responses back to Go errors.
//
// Usage:
//
//	ch := rpc.NewChannels(rpc.DefaultQueueSize)
//	runner := rpc.NewRunner(reg, ch)
//	go runner.Run(ctx)
//
//	bridge := rpc.NewBridge(ch)
//	defer bridge.Close()
//
//	// From any goroutine:
//	v, err := bridge.Invoke(ctx, 0, 42)
//
// A Bridge whose call timed out or was cancelled after its command was sent
// cannot tell whether a late response belongs to the abandoned call, so it
// refuses further calls with ErrDesynchronized.
package rpc
