// ABOUTME: Package store persists websites, conversations, and messages
// ABOUTME: SQLite-backed with an in-memory mock for tests

// Package store is the persistence collaborator for chat-gateway.
//
// The broker core treats it as a transactional external resource:
// conversation lifecycle transitions and message appends call into it
// and propagate failures without partially applying in-memory state.
// Conversation creation is a single atomic insert-if-absent; a losing
// racer receives ErrDuplicateConversation and re-reads the winner.
package store
