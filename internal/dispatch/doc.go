// ABOUTME: Package dispatch is the notification fan-out translation layer
// ABOUTME: Domain events in, per-topic protocol frames out through the broker

package dispatch
