// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHAT_GATEWAY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/chat-gateway/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHAT_GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Websocket endpoints and HTTP API
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-gateway/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHAT_GATEWAY_JWT_SECRET}"  # Required for dashboard auth
//
// Websocket tuning:
//
//	websocket:
//	  queue_size: 256             # Outbound frames buffered per connection
//
// Logging:
//
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text or json
//
// Metrics:
//
//	metrics:
//	  enabled: true               # Serve counters at /metrics
package config
