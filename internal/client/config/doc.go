// Package config loads runtime configuration for the relay client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via flags: -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   WebSocket URL of the relay, e.g. ws://127.0.0.1:8765/ws
//	-t int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_url": "ws://127.0.0.1:8765/ws",
//	  "request_timeout": "5s"
//	}
package config
