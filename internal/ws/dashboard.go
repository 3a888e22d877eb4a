// ABOUTME: Dashboard websocket endpoint - website subscriptions, manual replies, lifecycle ops
// ABOUTME: JWT-authenticated; unauthorized website ids are skipped, never fatal

package ws

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/protocol"
	"github.com/visitly/chat-gateway/internal/session"
	"github.com/visitly/chat-gateway/internal/store"
)

// HandleDashboard authenticates and upgrades an agent connection. The
// session joins its personal topic immediately; website topics require
// explicit subscribe_websites frames.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("dashboard upgrade failed", "error", err)
		return
	}

	sess := session.New(conn, session.RoleAgent, h.queueSize, h.logger)
	sess.UserID = userID

	defer h.broker.UnsubscribeAll(sess.ID())
	defer sess.Close()

	h.broker.Subscribe(protocol.UserTopic(userID), sess)

	sess.Deliver(protocol.Encode(protocol.NewConnectionEstablished(
		"Connected to dashboard", "", "", userID)))

	h.logger.Info("dashboard connected", "conn_id", sess.ID(), "user_id", userID)

	ctx := r.Context()
	sess.ReadLoop(func(data []byte) {
		h.handleDashboardFrame(ctx, sess, data)
	})

	h.logger.Info("dashboard disconnected", "conn_id", sess.ID(), "user_id", userID)
}

// handleDashboardFrame dispatches one inbound dashboard frame.
func (h *Handler) handleDashboardFrame(ctx context.Context, sess *session.Session, data []byte) {
	msg, perr := protocol.ParseDashboard(data)
	if perr != nil {
		sess.Deliver(protocol.ErrorBytes(perr))
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		sess.Deliver(protocol.Encode(protocol.NewDashboardPong(m.Timestamp, sess.UserID)))

	case protocol.SubscribeWebsites:
		h.subscribeWebsites(ctx, sess, m.WebsiteIDs)

	case protocol.UnsubscribeWebsites:
		for _, websiteID := range m.WebsiteIDs {
			h.broker.Unsubscribe(protocol.WebsiteTopic(websiteID), sess.ID())
			delete(sess.SubscribedWebsites, websiteID)
		}
		sess.Deliver(protocol.Encode(protocol.NewSubscriptionUpdate(subscribedList(sess))))

	case protocol.SendMessage:
		saved, err := h.service.AgentMessage(ctx, sess.UserID, m.ConversationID, m.Message)
		if err != nil {
			sess.Deliver(protocol.ErrorBytes(dashboardError(err)))
			return
		}
		sess.Deliver(protocol.Encode(protocol.NewMessageSent(m.ConversationID, saved.ID)))

	case protocol.AgentTyping:
		h.service.AgentTyping(ctx, sess.UserID, m.ConversationID, m.IsTyping)

	case protocol.GetConversationStatus:
		conv, err := h.service.Status(ctx, sess.UserID, m.ConversationID)
		if err != nil {
			sess.Deliver(protocol.ErrorBytes(dashboardError(err)))
			return
		}
		sess.Deliver(protocol.Encode(statusFrame(conv)))

	case protocol.EndConversation:
		conv, err := h.service.EndConversation(ctx, sess.UserID, m.ConversationID, "agent_ended")
		if err != nil {
			sess.Deliver(protocol.ErrorBytes(dashboardError(err)))
			return
		}
		// Direct ack with the terminal snapshot; the topic broadcasts
		// carry the conversation_ended frames.
		sess.Deliver(protocol.Encode(statusFrame(conv)))
	}
}

// subscribeWebsites joins the dashboard topics the user owns.
// Unauthorized ids are skipped without failing the rest of the batch.
func (h *Handler) subscribeWebsites(ctx context.Context, sess *session.Session, websiteIDs []string) {
	for _, websiteID := range websiteIDs {
		if websiteID == "" {
			continue
		}
		allowed, err := h.access.CanAccessWebsite(ctx, sess.UserID, websiteID)
		if err != nil {
			h.logger.Error("website access check failed", "website_id", websiteID, "error", err)
			continue
		}
		if !allowed {
			h.logger.Warn("unauthorized website subscription skipped",
				"user_id", sess.UserID,
				"website_id", websiteID)
			continue
		}

		h.broker.Subscribe(protocol.WebsiteTopic(websiteID), sess)
		sess.SubscribedWebsites[websiteID] = struct{}{}
	}

	sess.Deliver(protocol.Encode(protocol.NewSubscriptionUpdate(subscribedList(sess))))
}

func subscribedList(sess *session.Session) []string {
	ids := make([]string, 0, len(sess.SubscribedWebsites))
	for id := range sess.SubscribedWebsites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func statusFrame(conv *store.Conversation) protocol.ConversationStatusFrame {
	return protocol.ConversationStatusFrame{
		Type:           "conversation_status",
		ConversationID: conv.ID,
		Status: protocol.ConversationPayload{
			ID:                conv.ID,
			WebsiteID:         conv.WebsiteID,
			UserIdentifier:    conv.UserIdentifier,
			Status:            conv.Status,
			StartedAt:         conv.StartedAt,
			TotalMessages:     conv.TotalMessages,
			RequiresAttention: conv.RequiresAttention,
			Metadata:          conv.Metadata,
		},
		Timestamp: time.Now(),
	}
}

// dashboardError maps service failures onto dashboard-side protocol
// codes. Missing and foreign conversations are indistinguishable.
func dashboardError(err error) *protocol.Error {
	switch {
	case errors.Is(err, chat.ErrAccessDenied), errors.Is(err, chat.ErrConversationNotFound):
		return protocol.NewError(protocol.CodeAccessDenied, "Access denied to conversation")
	case errors.Is(err, chat.ErrConversationEnded):
		return protocol.NewError(protocol.CodeConversationNotFound, "Conversation has ended")
	default:
		return protocol.NewError(protocol.CodeInternalError, "Internal server error")
	}
}
