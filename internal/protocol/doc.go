// ABOUTME: Package protocol defines the websocket wire vocabulary for chat-gateway
// ABOUTME: Inbound message variants, outbound frame structs, error codes, topic keys

// Package protocol defines the JSON frame vocabulary spoken on the
// visitor and dashboard websocket endpoints.
//
// Every frame is a JSON object with a mandatory "type" field. Inbound
// frames are decoded into closed variant types (one family per
// endpoint role) so that handler dispatch is an exhaustive switch.
// Outbound frames are plain structs marshaled with encoding/json.
package protocol
