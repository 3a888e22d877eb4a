// ABOUTME: Conversation service - lifecycle transitions, message appends, event emission
// ABOUTME: All state changes persist through the store before any notification goes out

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/visitly/chat-gateway/internal/auth"
	"github.com/visitly/chat-gateway/internal/dispatch"
	"github.com/visitly/chat-gateway/internal/store"
)

// Service errors
var (
	// ErrWebsiteNotFound means the website id is unknown or inactive.
	ErrWebsiteNotFound = errors.New("website not found")

	// ErrConversationNotFound means the conversation does not exist or
	// does not belong to the claimed website.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationEnded means the conversation reached its terminal
	// state; it is never silently reopened.
	ErrConversationEnded = errors.New("conversation has ended")

	// ErrAccessDenied means the user does not own the resource. Callers
	// get the same answer whether the resource exists or not.
	ErrAccessDenied = errors.New("access denied")
)

// AckMessage is the automatic acknowledgment persisted and sent back
// after every accepted visitor message.
const AckMessage = "Thank you for your message. A support agent will respond to you shortly."

// Service coordinates conversation state across the store, the access
// checker, and the notification dispatcher.
type Service struct {
	store      store.Store
	access     auth.Checker
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New creates a conversation service. Pass nil logger for default.
func New(st store.Store, access auth.Checker, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		access:     access,
		dispatcher: dispatcher,
		logger:     logger.With("component", "chat"),
	}
}

// EnsureConversation resolves or creates the conversation for a visitor
// binding. An empty conversationID mints a new one. Idempotent: the
// same inputs yield the same conversation. The duplicate-insert race is
// resolved by re-reading the winner.
func (s *Service) EnsureConversation(ctx context.Context, websiteID, conversationID, userIdentifier string, metadata map[string]string) (*store.Conversation, error) {
	website, err := s.store.GetWebsite(ctx, websiteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWebsiteNotFound
		}
		return nil, fmt.Errorf("looking up website: %w", err)
	}
	if !website.Active {
		return nil, ErrWebsiteNotFound
	}

	if userIdentifier == "" {
		userIdentifier = "Anonymous"
	}

	if conversationID != "" {
		conv, err := s.store.GetConversation(ctx, conversationID)
		if err == nil {
			if conv.WebsiteID != websiteID {
				return nil, ErrConversationNotFound
			}
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up conversation: %w", err)
		}
	} else {
		conversationID = uuid.New().String()
	}

	conv := &store.Conversation{
		ID:             conversationID,
		WebsiteID:      websiteID,
		UserIdentifier: userIdentifier,
		Status:         store.StatusActive,
		Metadata:       metadata,
		StartedAt:      time.Now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Another frame won the insert race; use its conversation.
			existing, lookupErr := s.store.GetConversation(ctx, conversationID)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", conversationID)
				return existing, nil
			}
			return nil, fmt.Errorf("retry lookup after duplicate: %w", lookupErr)
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"website_id", websiteID,
		"user_identifier", userIdentifier)
	return conv, nil
}

// VisitorMessage records a visitor's message, raises the attention
// flag, and appends the automatic acknowledgment. Both messages and the
// one-time new_conversation notification fan out to the dashboard in
// that order; the acknowledgment also reaches the visitor topic.
func (s *Service) VisitorMessage(ctx context.Context, conversationID, content string) (*store.Message, *store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if conv.Ended() {
		return nil, nil, ErrConversationEnded
	}

	firstExchange := conv.TotalMessages == 0

	now := time.Now()
	visitorMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleVisitor,
		Content:        content,
		CreatedAt:      now,
	}
	if err := s.store.SaveMessage(ctx, visitorMsg); err != nil {
		return nil, nil, fmt.Errorf("recording visitor message: %w", err)
	}
	conv.TotalMessages++

	if err := s.store.SetRequiresAttention(ctx, conv.ID, true); err != nil {
		return nil, nil, fmt.Errorf("raising attention flag: %w", err)
	}
	conv.RequiresAttention = true

	ackMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAgent,
		Content:        AckMessage,
		CreatedAt:      now,
	}
	if err := s.store.SaveMessage(ctx, ackMsg); err != nil {
		return nil, nil, fmt.Errorf("recording acknowledgment: %w", err)
	}
	conv.TotalMessages++

	s.dispatcher.MessageCreated(conv, visitorMsg)
	s.dispatcher.MessageCreated(conv, ackMsg)
	if firstExchange {
		s.dispatcher.ConversationCreated(conv)
	}

	s.logger.Debug("visitor message recorded",
		"conversation_id", conv.ID,
		"message_id", visitorMsg.ID,
		"first_exchange", firstExchange)
	return visitorMsg, ackMsg, nil
}

// AgentMessage records a manual agent reply after an ownership check
// and clears the attention flag. Clearing an already-clear flag is a
// no-op.
func (s *Service) AgentMessage(ctx context.Context, userID, conversationID, content string) (*store.Message, error) {
	allowed, err := s.access.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		return nil, ErrAccessDenied
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if conv.Ended() {
		return nil, ErrConversationEnded
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAgent,
		Content:        content,
		Manual:         true,
		AgentID:        userID,
		CreatedAt:      time.Now(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording agent message: %w", err)
	}
	conv.TotalMessages++

	// Flag cleared only after the message write succeeded.
	if conv.RequiresAttention {
		if err := s.store.SetRequiresAttention(ctx, conv.ID, false); err != nil {
			return nil, fmt.Errorf("clearing attention flag: %w", err)
		}
		conv.RequiresAttention = false
		s.dispatcher.ConversationUpdated(conv, map[string]any{"requires_attention": false})
	}

	s.dispatcher.MessageCreated(conv, msg)

	s.logger.Debug("agent message recorded",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"agent_id", userID)
	return msg, nil
}

// EndConversation performs the irreversible active -> ended transition
// and broadcasts it. Ending an already-ended conversation is a no-op
// success so racing control surfaces converge on the same state.
func (s *Service) EndConversation(ctx context.Context, userID, conversationID, reason string) (*store.Conversation, error) {
	allowed, err := s.access.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		return nil, ErrAccessDenied
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if conv.Ended() {
		return conv, nil
	}

	now := time.Now()
	if err := s.store.UpdateConversationStatus(ctx, conv.ID, store.StatusEnded, &now); err != nil {
		return nil, fmt.Errorf("ending conversation: %w", err)
	}
	conv.Status = store.StatusEnded
	conv.EndedAt = &now

	s.dispatcher.ConversationEnded(conv, reason)

	s.logger.Info("conversation ended",
		"conversation_id", conv.ID,
		"agent_id", userID,
		"reason", reason)
	return conv, nil
}

// Status returns a lifecycle snapshot after an ownership check.
func (s *Service) Status(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	allowed, err := s.access.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		return nil, ErrAccessDenied
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	return conv, nil
}

// History returns a conversation's messages in arrival order after an
// ownership check. A limit of 0 means no limit.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int) ([]*store.Message, error) {
	allowed, err := s.access.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		return nil, ErrAccessDenied
	}

	msgs, err := s.store.GetMessagesByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return msgs, nil
}

// VisitorTyping forwards a visitor's typing state to the dashboard.
// Unknown conversations are silently ignored.
func (s *Service) VisitorTyping(ctx context.Context, conversationID string, isTyping bool) {
	if conversationID == "" {
		return
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return
	}
	s.dispatcher.TypingChanged(conv, store.RoleVisitor, isTyping, "")
}

// AgentTyping forwards an agent's typing state to the visitor topic.
// Ignored when the agent does not own the conversation.
func (s *Service) AgentTyping(ctx context.Context, userID, conversationID string, isTyping bool) {
	allowed, err := s.access.CanAccessConversation(ctx, userID, conversationID)
	if err != nil || !allowed {
		return
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return
	}
	s.dispatcher.TypingChanged(conv, store.RoleAgent, isTyping, userID)
}
