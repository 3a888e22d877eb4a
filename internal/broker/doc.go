// ABOUTME: Package broker is the topic membership and fan-out core
// ABOUTME: The only component allowed to touch shared subscription state

// Package broker maintains the mapping from topic keys to subscribed
// connections and fans broadcast frames out to current members.
//
// Delivery is best-effort and at-most-once per live connection: a
// subscriber whose delivery attempt fails is dropped from all topics so
// a slow consumer can never stall delivery to the others.
package broker
