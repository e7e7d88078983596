package rpc

import (
	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/plugin"
)

// Command is a request sent from a Bridge to a Runner.
type Command interface {
	CommandID() uuid.UUID
	isCommand()
}

// InvokeCommand calls the entry point of the plugin at Index with Arg.
type InvokeCommand struct {
	ID    uuid.UUID
	Index int
	Arg   int64
}

// ListManifestsCommand requests every manifest in registry order.
type ListManifestsCommand struct {
	ID uuid.UUID
}

func (c InvokeCommand) CommandID() uuid.UUID        { return c.ID }
func (c ListManifestsCommand) CommandID() uuid.UUID { return c.ID }

func (InvokeCommand) isCommand()        {}
func (ListManifestsCommand) isCommand() {}

// Response is the Runner's answer to exactly one Command.
type Response interface {
	ResponseID() uuid.UUID
	isResponse()
}

// IntegerResult is the value returned by an invoked entry point.
type IntegerResult struct {
	ID    uuid.UUID
	Index int
	Value int64
}

// ManifestList holds copies of every manifest in registry order.
type ManifestList struct {
	ID        uuid.UUID
	Manifests []plugin.Manifest
}

// RuntimeErrorResult reports a failed invocation.
type RuntimeErrorResult struct {
	ID      uuid.UUID
	Index   int
	Message string
}

// IndexErrorResult reports an index outside the registry.
type IndexErrorResult struct {
	ID    uuid.UUID
	Index int
	Len   int
}

func (r IntegerResult) ResponseID() uuid.UUID      { return r.ID }
func (r ManifestList) ResponseID() uuid.UUID       { return r.ID }
func (r RuntimeErrorResult) ResponseID() uuid.UUID { return r.ID }
func (r IndexErrorResult) ResponseID() uuid.UUID   { return r.ID }

func (IntegerResult) isResponse()      {}
func (ManifestList) isResponse()       {}
func (RuntimeErrorResult) isResponse() {}
func (IndexErrorResult) isResponse()   {}

// kind names a message variant for errors and logs.
func kind(v any) string {
	switch v.(type) {
	case InvokeCommand:
		return "invoke"
	case ListManifestsCommand:
		return "list_manifests"
	case IntegerResult:
		return "integer_result"
	case ManifestList:
		return "manifest_list"
	case RuntimeErrorResult:
		return "runtime_error"
	case IndexErrorResult:
		return "index_error"
	case nil:
		return "nil"
	default:
		return "unknown"
	}
}
