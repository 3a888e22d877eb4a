// ABOUTME: Translates domain events into outbound frames per topic
// ABOUTME: Visitor topics get narrow payloads; dashboard topics get identifying metadata

package dispatch

import (
	"log/slog"
	"time"

	"github.com/visitly/chat-gateway/internal/protocol"
	"github.com/visitly/chat-gateway/internal/store"
)

// Broadcaster is the slice of the broker the dispatcher needs.
type Broadcaster interface {
	Broadcast(topic string, frame []byte)
}

// Dispatcher is a pure translation layer: domain event in, encoded
// frames out through the broker. It holds no state of its own.
type Dispatcher struct {
	broker Broadcaster
	logger *slog.Logger
}

// New creates a dispatcher. Pass nil logger for default.
func New(broker Broadcaster, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		broker: broker,
		logger: logger.With("component", "dispatch"),
	}
}

// MessageCreated fans a persisted message out. Dashboard subscribers of
// the owning website always receive a new_message frame; agent and
// system messages are additionally delivered to the visitor topic as a
// chat_message frame.
func (d *Dispatcher) MessageCreated(conv *store.Conversation, msg *store.Message) {
	now := time.Now()

	dashboardFrame := protocol.NewMessageFrame{
		Type: "new_message",
		Message: protocol.MessagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Timestamp:      msg.CreatedAt,
			IsManual:       msg.Manual,
			AgentID:        msg.AgentID,
		},
		ConversationID: conv.ID,
		WebsiteID:      conv.WebsiteID,
		Timestamp:      now,
	}
	d.broker.Broadcast(protocol.WebsiteTopic(conv.WebsiteID), protocol.Encode(dashboardFrame))

	if msg.Role != store.RoleVisitor {
		visitorFrame := protocol.VisitorChatMessage{
			Type:           "chat_message",
			Role:           msg.Role,
			Message:        msg.Content,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			Timestamp:      msg.CreatedAt,
			IsManual:       msg.Manual,
			AgentID:        msg.AgentID,
		}
		d.broker.Broadcast(protocol.ChatTopic(conv.ID), protocol.Encode(visitorFrame))
	}

	d.logger.Debug("message dispatched",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"role", msg.Role)
}

// ConversationCreated announces a conversation's first exchange to the
// dashboard, exactly once, after the message frames for that exchange.
func (d *Dispatcher) ConversationCreated(conv *store.Conversation) {
	frame := protocol.NewConversationFrame{
		Type: "new_conversation",
		Conversation: protocol.ConversationPayload{
			ID:                conv.ID,
			WebsiteID:         conv.WebsiteID,
			UserIdentifier:    conv.UserIdentifier,
			Status:            conv.Status,
			StartedAt:         conv.StartedAt,
			TotalMessages:     conv.TotalMessages,
			RequiresAttention: conv.RequiresAttention,
			Metadata:          conv.Metadata,
		},
		WebsiteID: conv.WebsiteID,
		Timestamp: time.Now(),
	}
	d.broker.Broadcast(protocol.WebsiteTopic(conv.WebsiteID), protocol.Encode(frame))

	d.logger.Debug("conversation dispatched", "conversation_id", conv.ID, "website_id", conv.WebsiteID)
}

// ConversationEnded notifies the visitor and the dashboard of the
// terminal transition. The visitor frame omits website metadata.
func (d *Dispatcher) ConversationEnded(conv *store.Conversation, reason string) {
	now := time.Now()

	visitorFrame := protocol.ConversationEndedFrame{
		Type:           "conversation_ended",
		ConversationID: conv.ID,
		Message:        "This conversation has been ended by an agent.",
		Timestamp:      now,
	}
	d.broker.Broadcast(protocol.ChatTopic(conv.ID), protocol.Encode(visitorFrame))

	dashboardFrame := protocol.ConversationEndedFrame{
		Type:           "conversation_ended",
		ConversationID: conv.ID,
		WebsiteID:      conv.WebsiteID,
		Reason:         reason,
		Timestamp:      now,
	}
	d.broker.Broadcast(protocol.WebsiteTopic(conv.WebsiteID), protocol.Encode(dashboardFrame))

	d.logger.Debug("conversation end dispatched", "conversation_id", conv.ID, "reason", reason)
}

// TypingChanged relays a typing state change. Visitor typing goes to
// the owning website's dashboard topic; agent typing goes to the
// conversation's visitor topic.
func (d *Dispatcher) TypingChanged(conv *store.Conversation, userType string, isTyping bool, agentID string) {
	frame := protocol.TypingIndicator{
		Type:           "typing_indicator",
		ConversationID: conv.ID,
		IsTyping:       isTyping,
		UserType:       userType,
		AgentID:        agentID,
		Timestamp:      time.Now(),
	}
	encoded := protocol.Encode(frame)

	if userType == store.RoleVisitor {
		d.broker.Broadcast(protocol.WebsiteTopic(conv.WebsiteID), encoded)
	} else {
		d.broker.Broadcast(protocol.ChatTopic(conv.ID), encoded)
	}
}

// ConversationUpdated pushes attribute changes (attention flag and the
// like) to the owning website's dashboard topic.
func (d *Dispatcher) ConversationUpdated(conv *store.Conversation, updates map[string]any) {
	frame := protocol.ConversationUpdatedFrame{
		Type:           "conversation_updated",
		ConversationID: conv.ID,
		Updates:        updates,
		Timestamp:      time.Now(),
	}
	d.broker.Broadcast(protocol.WebsiteTopic(conv.WebsiteID), protocol.Encode(frame))
}
