// ABOUTME: Visitor websocket endpoint - identify, chat_message, typing, ping
// ABOUTME: Route carries website id, conversation id (or "new"), and user identifier

package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/protocol"
	"github.com/visitly/chat-gateway/internal/session"
	"github.com/visitly/chat-gateway/internal/store"
)

// HandleVisitor upgrades a visitor widget connection and runs its frame
// loop until the peer disconnects.
func (h *Handler) HandleVisitor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	websiteID := vars["website_id"]
	conversationID := vars["conversation_id"]
	userIdentifier := vars["user_identifier"]

	if conversationID == NewConversationSentinel {
		conversationID = ""
	}
	if userIdentifier == "" {
		userIdentifier = protocol.AnonymousIdentifier
	}

	website, err := h.store.GetWebsite(r.Context(), websiteID)
	if err != nil || !website.Active {
		http.Error(w, "unknown website", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("visitor upgrade failed", "error", err)
		return
	}

	sess := session.New(conn, session.RoleVisitor, h.queueSize, h.logger)
	sess.WebsiteID = websiteID
	sess.ConversationID = conversationID
	sess.UserIdentifier = userIdentifier

	defer h.broker.UnsubscribeAll(sess.ID())
	defer sess.Close()

	if conversationID != "" {
		h.broker.Subscribe(protocol.ChatTopic(conversationID), sess)
	}

	sess.Deliver(protocol.Encode(protocol.NewConnectionEstablished(
		"Connected to chat service", websiteID, conversationID, "")))

	h.logger.Info("visitor connected",
		"conn_id", sess.ID(),
		"website_id", websiteID,
		"conversation_id", conversationID)

	ctx := r.Context()
	sess.ReadLoop(func(data []byte) {
		h.handleVisitorFrame(ctx, sess, data)
	})

	h.logger.Info("visitor disconnected", "conn_id", sess.ID())
}

// handleVisitorFrame dispatches one inbound visitor frame. Every
// failure path answers with an error frame; none of them closes the
// connection.
func (h *Handler) handleVisitorFrame(ctx context.Context, sess *session.Session, data []byte) {
	msg, perr := protocol.ParseVisitor(data)
	if perr != nil {
		sess.Deliver(protocol.ErrorBytes(perr))
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		sess.Deliver(protocol.Encode(protocol.NewVisitorPong(m.Timestamp, sess.ConversationID)))

	case protocol.Identify:
		conv, perr := h.bindConversation(ctx, sess, m.WebsiteID, m.UserIdentifier, nil)
		if perr != nil {
			sess.Deliver(protocol.ErrorBytes(perr))
			return
		}
		sess.Deliver(protocol.Encode(protocol.NewIdentified(conv.ID, conv.WebsiteID, conv.UserIdentifier)))

	case protocol.InitConversation:
		conv, perr := h.bindConversation(ctx, sess, m.WebsiteID, m.UserIdentifier, m.Metadata)
		if perr != nil {
			sess.Deliver(protocol.ErrorBytes(perr))
			return
		}
		sess.Deliver(protocol.Encode(protocol.NewConversationInitialized(conv.ID, conv.WebsiteID)))

	case protocol.ChatMessage:
		h.visitorChat(ctx, sess, m)

	case protocol.VisitorTyping:
		h.service.VisitorTyping(ctx, sess.ConversationID, m.IsTyping)
	}
}

// bindConversation resolves the session's conversation for identify and
// init_conversation. Re-identifying with the same website keeps the
// same conversation; a different website starts a fresh one.
func (h *Handler) bindConversation(ctx context.Context, sess *session.Session, websiteID, userIdentifier string, metadata map[string]string) (*store.Conversation, *protocol.Error) {
	conversationID := ""
	if sess.WebsiteID == websiteID {
		conversationID = sess.ConversationID
	}

	conv, err := h.service.EnsureConversation(ctx, websiteID, conversationID, userIdentifier, metadata)
	if err != nil {
		return nil, visitorError(err)
	}

	if sess.ConversationID != conv.ID {
		if sess.ConversationID != "" {
			h.broker.Unsubscribe(protocol.ChatTopic(sess.ConversationID), sess.ID())
		}
		h.broker.Subscribe(protocol.ChatTopic(conv.ID), sess)
	}

	sess.WebsiteID = conv.WebsiteID
	sess.ConversationID = conv.ID
	sess.UserIdentifier = conv.UserIdentifier
	return conv, nil
}

// visitorChat accepts a visitor message: resolve the conversation if
// needed, persist, and let the dispatcher fan the acknowledgment back
// through the visitor topic.
func (h *Handler) visitorChat(ctx context.Context, sess *session.Session, m protocol.ChatMessage) {
	if sess.ConversationID == "" {
		if sess.WebsiteID == "" {
			sess.Deliver(protocol.ErrorBytes(protocol.NewError(
				protocol.CodeNotIdentified, "Identify before sending messages")))
			return
		}

		conv, perr := h.bindConversation(ctx, sess, sess.WebsiteID, sess.UserIdentifier, nil)
		if perr != nil {
			sess.Deliver(protocol.ErrorBytes(perr))
			return
		}
		sess.ConversationID = conv.ID
	}

	_, _, err := h.service.VisitorMessage(ctx, sess.ConversationID, m.Message)
	if errors.Is(err, chat.ErrConversationNotFound) && sess.WebsiteID != "" {
		// Widget-minted id: the route named a conversation the store has
		// never seen. Create it under the session's website binding with
		// that same id, then retry once.
		conv, perr := h.bindConversation(ctx, sess, sess.WebsiteID, sess.UserIdentifier, nil)
		if perr != nil {
			sess.Deliver(protocol.ErrorBytes(perr))
			return
		}
		_, _, err = h.service.VisitorMessage(ctx, conv.ID, m.Message)
	}
	if err != nil {
		sess.Deliver(protocol.ErrorBytes(visitorError(err)))
	}
}

// visitorError maps service failures onto visitor-side protocol codes.
func visitorError(err error) *protocol.Error {
	switch {
	case errors.Is(err, chat.ErrWebsiteNotFound):
		return protocol.NewError(protocol.CodeInvalidWebsiteID, "Invalid website ID")
	case errors.Is(err, chat.ErrConversationNotFound):
		return protocol.NewError(protocol.CodeConversationNotFound, "Conversation not found")
	case errors.Is(err, chat.ErrConversationEnded):
		// Ended conversations reject new messages; they are never
		// silently reopened.
		return protocol.NewError(protocol.CodeConversationNotFound, "Conversation has ended")
	default:
		return protocol.NewError(protocol.CodeInternalError, "Internal server error")
	}
}
