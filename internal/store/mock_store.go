// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	websites      map[string]*Website      // keyed by website ID
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID

	// FailSaves makes SaveMessage return this error, for exercising
	// persistence-failure paths.
	FailSaves error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		websites:      make(map[string]*Website),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

// CreateWebsite stores a new website.
func (m *MockStore) CreateWebsite(ctx context.Context, website *Website) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := *website
	m.websites[w.ID] = &w
	return nil
}

// GetWebsite retrieves a website by ID.
func (m *MockStore) GetWebsite(ctx context.Context, id string) (*Website, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.websites[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *w
	return &result, nil
}

// ListWebsitesByOwner returns websites owned by the given user.
func (m *MockStore) ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*Website, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var websites []*Website
	for _, w := range m.websites {
		if w.OwnerID == ownerID {
			result := *w
			websites = append(websites, &result)
		}
	}
	sort.Slice(websites, func(i, j int) bool {
		return websites[i].CreatedAt.After(websites[j].CreatedAt)
	})
	return websites, nil
}

// WebsiteOwnedBy reports whether the website belongs to userID.
func (m *MockStore) WebsiteOwnedBy(ctx context.Context, websiteID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.websites[websiteID]
	return ok && w.OwnerID == userID, nil
}

// CreateConversation stores a new conversation, enforcing the
// insert-if-absent contract.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}

	c := *conv
	if c.Metadata != nil {
		c.Metadata = copyMetadata(c.Metadata)
	}
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	if result.Metadata != nil {
		result.Metadata = copyMetadata(result.Metadata)
	}
	return &result, nil
}

// UpdateConversationStatus sets the lifecycle state of a conversation.
func (m *MockStore) UpdateConversationStatus(ctx context.Context, id, status string, endedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.EndedAt = endedAt
	return nil
}

// SetRequiresAttention toggles the attention flag.
func (m *MockStore) SetRequiresAttention(ctx context.Context, id string, requires bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.RequiresAttention = requires
	return nil
}

// ConversationOwnedBy reports whether the conversation's website belongs
// to userID.
func (m *MockStore) ConversationOwnedBy(ctx context.Context, conversationID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return false, nil
	}
	w, ok := m.websites[c.WebsiteID]
	return ok && w.OwnerID == userID, nil
}

// SaveMessage appends a message and bumps the conversation counters.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves != nil {
		return m.FailSaves
	}

	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}

	message := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &message)

	c.TotalMessages++
	at := msg.CreatedAt
	c.LastMessageAt = &at
	return nil
}

// GetMessagesByConversation returns messages in arrival order.
func (m *MockStore) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.messages[conversationID]
	if limit > 0 && limit < len(stored) {
		stored = stored[:limit]
	}

	messages := make([]*Message, 0, len(stored))
	for _, msg := range stored {
		result := *msg
		messages = append(messages, &result)
	}
	return messages, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	copied := make(map[string]string, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	return copied
}
