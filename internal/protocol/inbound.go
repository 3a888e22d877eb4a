// ABOUTME: Inbound frame decoding into closed per-role message variants
// ABOUTME: ParseVisitor and ParseDashboard validate required fields and normalize defaults

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnonymousIdentifier is the participant identifier used when a visitor
// never supplies one.
const AnonymousIdentifier = "Anonymous"

// VisitorMessage is the closed set of frames a visitor connection may
// send. Handlers switch exhaustively over the concrete types.
type VisitorMessage interface {
	visitorMessage()
}

// DashboardMessage is the closed set of frames a dashboard connection
// may send.
type DashboardMessage interface {
	dashboardMessage()
}

// Ping is a keep-alive request. Valid on both endpoints; the optional
// timestamp is echoed back on the pong.
type Ping struct {
	Timestamp string `json:"timestamp,omitempty"`
}

func (Ping) visitorMessage()   {}
func (Ping) dashboardMessage() {}

// Identify binds a visitor connection to a website and resolves its
// conversation.
type Identify struct {
	WebsiteID      string `json:"website_id"`
	UserIdentifier string `json:"user_identifier,omitempty"`
}

func (Identify) visitorMessage() {}

// InitConversation is Identify plus free-form conversation metadata.
type InitConversation struct {
	WebsiteID      string            `json:"website_id"`
	UserIdentifier string            `json:"user_identifier,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (InitConversation) visitorMessage() {}

// ChatMessage carries a visitor's message text.
type ChatMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (ChatMessage) visitorMessage() {}

// VisitorTyping reports the visitor's typing state to the dashboard.
// The widget sends camelCase isTyping; the dashboard side uses
// is_typing.
type VisitorTyping struct {
	IsTyping bool `json:"isTyping"`
}

func (VisitorTyping) visitorMessage() {}

// SubscribeWebsites joins the dashboard topics for the listed websites,
// subject to per-id ownership checks.
type SubscribeWebsites struct {
	WebsiteIDs []string `json:"website_ids"`
}

func (SubscribeWebsites) dashboardMessage() {}

// UnsubscribeWebsites leaves the dashboard topics for the listed websites.
type UnsubscribeWebsites struct {
	WebsiteIDs []string `json:"website_ids"`
}

func (UnsubscribeWebsites) dashboardMessage() {}

// SendMessage is a manual agent reply into a conversation.
type SendMessage struct {
	ConversationID string            `json:"conversation_id"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (SendMessage) dashboardMessage() {}

// AgentTyping reports an agent's typing state to the visitor.
type AgentTyping struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

func (AgentTyping) dashboardMessage() {}

// GetConversationStatus requests a lifecycle snapshot of a conversation.
type GetConversationStatus struct {
	ConversationID string `json:"conversation_id"`
}

func (GetConversationStatus) dashboardMessage() {}

// EndConversation terminates a conversation. Equivalent to the HTTP
// control-surface end route.
type EndConversation struct {
	ConversationID string `json:"conversation_id"`
}

func (EndConversation) dashboardMessage() {}

// envelope extracts the mandatory type discriminator.
type envelope struct {
	Type string `json:"type"`
}

// ParseVisitor decodes a raw visitor frame. A nil *Error means the
// message is valid; any returned error is recoverable and must be
// answered with an error frame without closing the connection.
func ParseVisitor(data []byte) (VisitorMessage, *Error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewError(CodeInvalidJSON, "Invalid message format")
	}

	switch env.Type {
	case "ping":
		var msg Ping
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	case "identify":
		var msg Identify
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		if msg.WebsiteID == "" {
			return nil, NewError(CodeMissingWebsiteID, "Website ID is required")
		}
		if msg.UserIdentifier == "" {
			msg.UserIdentifier = AnonymousIdentifier
		}
		return msg, nil

	case "init_conversation":
		var msg InitConversation
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		if msg.WebsiteID == "" {
			return nil, NewError(CodeMissingWebsiteID, "Website ID is required")
		}
		if msg.UserIdentifier == "" {
			msg.UserIdentifier = AnonymousIdentifier
		}
		return msg, nil

	case "chat_message":
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		msg.Message = strings.TrimSpace(msg.Message)
		if msg.Message == "" {
			return nil, NewError(CodeEmptyMessage, "Message cannot be empty")
		}
		return msg, nil

	case "typing":
		var msg VisitorTyping
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	default:
		return nil, NewError(CodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

// ParseDashboard decodes a raw dashboard frame with the same error
// contract as ParseVisitor.
func ParseDashboard(data []byte) (DashboardMessage, *Error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewError(CodeInvalidJSON, "Invalid message format")
	}

	switch env.Type {
	case "ping":
		var msg Ping
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	case "subscribe_websites":
		var msg SubscribeWebsites
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	case "unsubscribe_websites":
		var msg UnsubscribeWebsites
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	case "send_message":
		var msg SendMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		if msg.ConversationID == "" {
			return nil, NewError(CodeMissingConversationID, "Missing conversation_id")
		}
		msg.Message = strings.TrimSpace(msg.Message)
		if msg.Message == "" {
			return nil, NewError(CodeEmptyMessage, "Empty message")
		}
		return msg, nil

	case "typing":
		var msg AgentTyping
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		return msg, nil

	case "get_conversation_status":
		var msg GetConversationStatus
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		if msg.ConversationID == "" {
			return nil, NewError(CodeMissingConversationID, "Missing conversation_id")
		}
		return msg, nil

	case "end_conversation":
		var msg EndConversation
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, NewError(CodeInvalidJSON, "Invalid message format")
		}
		if msg.ConversationID == "" {
			return nil, NewError(CodeMissingConversationID, "Missing conversation_id")
		}
		return msg, nil

	default:
		return nil, NewError(CodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}
