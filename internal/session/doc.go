// ABOUTME: Package session wraps one live websocket connection
// ABOUTME: FIFO inbound processing and an isolated bounded outbound queue

// Package session owns the per-connection half of the broker core: a
// fixed identity struct populated at construction, strictly ordered
// inbound frame processing, and an isolated outbound queue so one
// blocked writer never delays delivery to other connections.
package session
