// Package config provides the configuration for plughost.
//
// Configuration is resolved in layers, each overriding the one before:
//
//  1. Built-in defaults (Default)
//  2. A TOML file, when present
//  3. PLUGHOST_* environment variables
//
// Command line flags are applied by the caller on top of the result.
//
// # File format
//
//	[plugins]
//	root = "plugins"
//	load_policy = "skip"    # skip | abort
//	entry_point = "test"
//
//	[runtime]
//	execution_timeout = "5s"
//	call_timeout = "0s"     # 0 waits for ever
//	queue_size = 16
//
//	[logging]
//	level = "info"          # debug | info | warn | error
//	format = "auto"         # text | json | auto
//
// # Environment
//
// PLUGHOST_PLUGIN_ROOT, PLUGHOST_LOAD_POLICY, PLUGHOST_ENTRY_POINT,
// PLUGHOST_EXECUTION_TIMEOUT, PLUGHOST_CALL_TIMEOUT, PLUGHOST_QUEUE_SIZE,
// PLUGHOST_LOG_LEVEL and PLUGHOST_LOG_FORMAT override the matching keys.
package config
