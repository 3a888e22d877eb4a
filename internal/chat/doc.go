// ABOUTME: Package chat owns the conversation lifecycle state machine
// ABOUTME: Sole writer of conversation status; record first, then notify

// Package chat is the conversation layer between the protocol routers
// and the store. It is the only writer of conversation lifecycle state
// (pending -> active -> ended), enforces the attention-flag rules, and
// emits domain events through the dispatcher after persistence has
// succeeded — never before.
package chat
