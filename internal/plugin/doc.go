// Package plugin discovers, validates and loads script plugins.
//
// A plugin is a directory under the plugin root containing one manifest and
// one or more Lua scripts:
//
//	plugins/
//	└── alpha/
//	    ├── plugin.toml   # or plugin.yaml / plugin.yml
//	    ├── main.lua
//	    └── util.lua
//
// # Manifest
//
// Every field is required; unknown fields are ignored:
//
//	name = "alpha"
//	description = "Doubles numbers"
//	icon = "alpha.png"
//	authors = ["Ada"]
//
//	[[items]]
//	name = "sword"
//	quantity = 1
//	icon = "sword.png"
//
// ManifestSchema returns the JSON Schema of this format.
//
// # Discovery
//
// Discover walks the direct subdirectories of the root in lexical order.
// Each candidate is loaded in three stages: manifest, compile, instantiate.
// A candidate that fails any stage is skipped and recorded in
// Registry.Failures, or aborts discovery under PolicyAbort.
//
// Plugins that load are indexed from zero in discovery order. The registry
// is immutable after Discover returns.
//
// # Concurrency
//
// A Registry and its VMs are owned by one goroutine. The rpc package runs
// that goroutine and exposes a concurrent-safe bridge to it.
package plugin
