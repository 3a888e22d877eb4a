// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Website, Conversation, Message structs and sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// whose ID already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation lifecycle states. Transitions are monotonic:
// pending -> active -> ended.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// Message roles
const (
	RoleVisitor = "visitor"
	RoleAgent   = "agent"
	RoleSystem  = "system"
)

// Website represents a site whose pages embed the chat widget
type Website struct {
	ID             string
	Name           string
	URL            string
	OwnerID        string
	BotName        string
	WelcomeMessage string
	Active         bool
	CreatedAt      time.Time
}

// Conversation represents one visitor's session with a website's agents.
// The lifecycle state is owned by the chat service; the store only
// records it.
type Conversation struct {
	ID                string
	WebsiteID         string
	UserIdentifier    string
	Status            string
	RequiresAttention bool
	TotalMessages     int
	Metadata          map[string]string
	StartedAt         time.Time
	LastMessageAt     *time.Time
	EndedAt           *time.Time
}

// Ended reports whether the conversation has reached its terminal state.
func (c *Conversation) Ended() bool {
	return c.Status == StatusEnded
}

// Message is a single append-only message within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Manual         bool
	AgentID        string
	CreatedAt      time.Time
}

// Store defines the interface for website/conversation/message persistence
type Store interface {
	// Websites
	CreateWebsite(ctx context.Context, website *Website) error
	GetWebsite(ctx context.Context, id string) (*Website, error)
	ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*Website, error)
	WebsiteOwnedBy(ctx context.Context, websiteID, userID string) (bool, error)

	// Conversations. CreateConversation is atomic insert-if-absent and
	// returns ErrDuplicateConversation when the ID is already taken.
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversationStatus(ctx context.Context, id, status string, endedAt *time.Time) error
	SetRequiresAttention(ctx context.Context, id string, requires bool) error
	ConversationOwnedBy(ctx context.Context, conversationID, userID string) (bool, error)

	// Messages. SaveMessage also bumps the conversation's message count
	// and last-message timestamp in the same transaction.
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	Close() error
}
