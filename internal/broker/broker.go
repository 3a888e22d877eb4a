// ABOUTME: Topic broker mapping topic keys to subscriber sets
// ABOUTME: Subscribe/unsubscribe/broadcast/unsubscribeAll, all internally synchronized

package broker

import (
	"log/slog"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"
)

// Subscriber is a connection the broker can deliver frames to.
// Deliver must not block; it reports false when the subscriber's queue
// is full or the connection is already closed.
type Subscriber interface {
	ID() string
	Deliver(frame []byte) bool
}

// Broker provides in-memory pub/sub over string topic keys. Topics are
// created lazily on first subscribe and removed when the last
// subscriber leaves.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber // topic -> connID -> subscriber
	conns  map[string]map[string]struct{}   // connID -> set of topics
	logger *slog.Logger
}

// New creates a broker. Pass nil logger for default.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		topics: make(map[string]map[string]Subscriber),
		conns:  make(map[string]map[string]struct{}),
		logger: logger.With("component", "broker"),
	}
}

// Subscribe adds sub to the topic. Adding an already-subscribed
// connection is a no-op.
func (b *Broker) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.topics[topic]
	if !ok {
		members = make(map[string]Subscriber)
		b.topics[topic] = members
	}
	if _, exists := members[sub.ID()]; exists {
		return
	}
	members[sub.ID()] = sub

	topicsForConn, ok := b.conns[sub.ID()]
	if !ok {
		topicsForConn = make(map[string]struct{})
		b.conns[sub.ID()] = topicsForConn
	}
	topicsForConn[topic] = struct{}{}

	b.logger.Debug("subscriber added", "topic", topic, "conn_id", sub.ID())
}

// Unsubscribe removes the connection from the topic. Removing a
// non-member is a no-op.
func (b *Broker) Unsubscribe(topic, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(topic, connID)
}

// UnsubscribeAll removes the connection from every topic. Called once
// at connection teardown; safe to invoke concurrently with an in-flight
// broadcast.
func (b *Broker) UnsubscribeAll(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic := range b.conns[connID] {
		b.removeLocked(topic, connID)
	}
}

// Broadcast delivers frame to every connection subscribed to topic at
// the instant of the call. Subscribers whose delivery fails are dropped
// from all topics.
func (b *Broker) Broadcast(topic string, frame []byte) {
	b.mu.RLock()
	members, ok := b.topics[topic]
	if !ok || len(members) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy membership under the read lock so a slow Deliver never holds
	// the broker closed.
	targets := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	gometrics.GetOrRegisterCounter("broker.broadcasts", nil).Inc(1)

	var failed []string
	for _, sub := range targets {
		if sub.Deliver(frame) {
			gometrics.GetOrRegisterCounter("broker.deliveries", nil).Inc(1)
		} else {
			gometrics.GetOrRegisterCounter("broker.drops", nil).Inc(1)
			failed = append(failed, sub.ID())
		}
	}

	for _, connID := range failed {
		b.logger.Warn("dropping slow subscriber", "topic", topic, "conn_id", connID)
		b.UnsubscribeAll(connID)
	}
}

// Topics returns the topics the connection is currently subscribed to.
func (b *Broker) Topics(connID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.conns[connID]))
	for topic := range b.conns[connID] {
		topics = append(topics, topic)
	}
	return topics
}

// Subscribers returns the current member count of a topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// removeLocked deletes one membership entry and cleans up empty sets.
// Caller holds the write lock.
func (b *Broker) removeLocked(topic, connID string) {
	members, ok := b.topics[topic]
	if !ok {
		return
	}
	if _, exists := members[connID]; !exists {
		return
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(b.topics, topic)
	}

	topicsForConn := b.conns[connID]
	delete(topicsForConn, topic)
	if len(topicsForConn) == 0 {
		delete(b.conns, connID)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "conn_id", connID)
}
