// ABOUTME: Outbound frame structs and encoding helpers
// ABOUTME: Visitor frames carry a narrower payload than dashboard frames

package protocol

import (
	"encoding/json"
	"time"
)

// ErrorFrame is the shape of every outbound error:
// {"type":"error","message":...,"code":...}.
type ErrorFrame struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// ErrorBytes encodes a protocol error as a ready-to-send frame.
func ErrorBytes(perr *Error) []byte {
	return Encode(ErrorFrame{Type: "error", Message: perr.Message, Code: perr.Code})
}

// Pong answers a ping, echoing the client timestamp when present plus
// the connection's identity: conversation id for visitors, user id for
// dashboards.
type Pong struct {
	Type           string `json:"type"`
	Timestamp      string `json:"timestamp,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// NewVisitorPong builds a pong for a visitor connection.
func NewVisitorPong(timestamp, conversationID string) Pong {
	return Pong{Type: "pong", Timestamp: timestamp, ConversationID: conversationID}
}

// NewDashboardPong builds a pong for a dashboard connection.
func NewDashboardPong(timestamp, userID string) Pong {
	return Pong{Type: "pong", Timestamp: timestamp, UserID: userID}
}

// ConnectionEstablished is sent once, right after a successful upgrade.
type ConnectionEstablished struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	WebsiteID      string `json:"website_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Status         string `json:"status"`
}

// NewConnectionEstablished builds the post-upgrade confirmation frame.
func NewConnectionEstablished(message, websiteID, conversationID, userID string) ConnectionEstablished {
	return ConnectionEstablished{
		Type:           "connection_established",
		Message:        message,
		WebsiteID:      websiteID,
		ConversationID: conversationID,
		UserID:         userID,
		Status:         "success",
	}
}

// Identified acknowledges a successful identify.
type Identified struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	WebsiteID      string `json:"website_id"`
	UserIdentifier string `json:"user_identifier"`
	Status         string `json:"status"`
}

// NewIdentified builds an identified ack.
func NewIdentified(conversationID, websiteID, userIdentifier string) Identified {
	return Identified{
		Type:           "identified",
		ConversationID: conversationID,
		WebsiteID:      websiteID,
		UserIdentifier: userIdentifier,
		Status:         "success",
	}
}

// ConversationInitialized acknowledges a successful init_conversation.
type ConversationInitialized struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	WebsiteID      string `json:"website_id"`
	Status         string `json:"status"`
}

// NewConversationInitialized builds a conversation_initialized ack.
func NewConversationInitialized(conversationID, websiteID string) ConversationInitialized {
	return ConversationInitialized{
		Type:           "conversation_initialized",
		ConversationID: conversationID,
		WebsiteID:      websiteID,
		Status:         "success",
	}
}

// VisitorChatMessage delivers an agent or automatic reply to the visitor.
type VisitorChatMessage struct {
	Type           string    `json:"type"`
	Role           string    `json:"role"`
	Message        string    `json:"message"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
	IsManual       bool      `json:"is_manual"`
	AgentID        string    `json:"agent_id,omitempty"`
}

// MessagePayload is the dashboard-side view of a message.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsManual       bool      `json:"is_manual"`
	AgentID        string    `json:"agent_id,omitempty"`
}

// NewMessageFrame notifies dashboard subscribers of a message.
type NewMessageFrame struct {
	Type           string         `json:"type"`
	Message        MessagePayload `json:"message"`
	ConversationID string         `json:"conversation_id"`
	WebsiteID      string         `json:"website_id"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ConversationPayload is the dashboard-side view of a conversation.
type ConversationPayload struct {
	ID                string            `json:"id"`
	WebsiteID         string            `json:"website_id"`
	UserIdentifier    string            `json:"user_identifier"`
	Status            string            `json:"status"`
	StartedAt         time.Time         `json:"started_at"`
	TotalMessages     int               `json:"total_messages"`
	RequiresAttention bool              `json:"requires_attention"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// NewConversationFrame announces a conversation's first message exactly once.
type NewConversationFrame struct {
	Type         string              `json:"type"`
	Conversation ConversationPayload `json:"conversation"`
	WebsiteID    string              `json:"website_id"`
	Timestamp    time.Time           `json:"timestamp"`
}

// ConversationEndedFrame announces a terminal lifecycle transition.
type ConversationEndedFrame struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	WebsiteID      string    `json:"website_id,omitempty"`
	Message        string    `json:"message,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TypingIndicator relays a typing state change.
type TypingIndicator struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
	UserType       string    `json:"user_type"`
	AgentID        string    `json:"agent_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationUpdatedFrame carries attribute changes to the dashboard.
type ConversationUpdatedFrame struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Updates        map[string]any `json:"updates"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SubscriptionUpdate acknowledges subscribe/unsubscribe_websites with
// the connection's full current subscription set.
type SubscriptionUpdate struct {
	Type               string   `json:"type"`
	SubscribedWebsites []string `json:"subscribed_websites"`
	Status             string   `json:"status"`
}

// NewSubscriptionUpdate builds a subscription_update ack.
func NewSubscriptionUpdate(websiteIDs []string) SubscriptionUpdate {
	if websiteIDs == nil {
		websiteIDs = []string{}
	}
	return SubscriptionUpdate{
		Type:               "subscription_update",
		SubscribedWebsites: websiteIDs,
		Status:             "success",
	}
}

// MessageSent acknowledges a dashboard send_message.
type MessageSent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
}

// NewMessageSent builds a message_sent ack.
func NewMessageSent(conversationID, messageID string) MessageSent {
	return MessageSent{
		Type:           "message_sent",
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         "success",
	}
}

// ConversationStatusFrame answers get_conversation_status.
type ConversationStatusFrame struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id"`
	Status         ConversationPayload `json:"status"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Encode marshals an outbound frame. Frames are plain data structs;
// a marshal failure is a programming error and panics.
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("protocol: unencodable frame: " + err.Error())
	}
	return data
}
