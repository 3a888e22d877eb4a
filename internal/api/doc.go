// ABOUTME: Package api serves the JSON control surface for dashboard backends
// ABOUTME: Website provisioning, manual replies, lifecycle ops, health, metrics

// Package api exposes the HTTP endpoints that sit beside the websocket
// surfaces: website provisioning, manual agent replies, conversation
// lifecycle operations, message history, a health probe, and a metrics
// dump. All endpoints except health and metrics require a bearer JWT.
// Writes go through the same chat service as the websocket handlers, so
// every side effect fans out to subscribed dashboards identically.
package api
