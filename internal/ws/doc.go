// ABOUTME: Package ws serves the visitor and dashboard websocket endpoints
// ABOUTME: Per-role protocol routers; protocol errors never close the connection

// Package ws upgrades the two websocket surfaces and routes each
// inbound frame to its handler. The visitor route carries the website,
// conversation, and user identifier in the path; the dashboard route
// requires a bearer token. A malformed or unknown frame is answered
// with an error frame on the offending connection only.
package ws
