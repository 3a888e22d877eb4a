// ABOUTME: HTTP API server - website provisioning and conversation operations
// ABOUTME: Bearer JWT auth; conversation writes reuse the chat service

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/visitly/chat-gateway/internal/auth"
	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/store"
)

// Server carries the dependencies of the HTTP API handlers.
type Server struct {
	service  *chat.Service
	store    store.Store
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// NewServer creates the HTTP API server. Pass nil logger for default.
func NewServer(service *chat.Service, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:  service,
		store:    st,
		verifier: verifier,
		logger:   logger.With("component", "api"),
	}
}

// Register attaches the API routes to the router. metricsEnabled
// controls whether /metrics is served.
func (s *Server) Register(r *mux.Router, metricsEnabled bool) {
	r.HandleFunc("/api/healthz", s.handleHealth).Methods(http.MethodGet)
	if metricsEnabled {
		r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/websites", s.authed(s.handleCreateWebsite)).Methods(http.MethodPost)
	r.HandleFunc("/api/websites", s.authed(s.handleListWebsites)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations/{id}", s.authed(s.handleGetConversation)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations/{id}/respond", s.authed(s.handleRespond)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id}/end", s.authed(s.handleEnd)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id}/messages", s.authed(s.handleMessages)).Methods(http.MethodGet)
}

// authed wraps a handler with bearer token verification. The resolved
// user id is passed through rather than stashed in the context.
func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	gometrics.WriteJSONOnce(gometrics.DefaultRegistry, w)
}

type createWebsiteRequest struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	BotName        string `json:"bot_name"`
	WelcomeMessage string `json:"welcome_message"`
}

type websiteResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	OwnerID        string    `json:"owner_id"`
	BotName        string    `json:"bot_name,omitempty"`
	WelcomeMessage string    `json:"welcome_message,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toWebsiteResponse(site *store.Website) websiteResponse {
	return websiteResponse{
		ID:             site.ID,
		Name:           site.Name,
		URL:            site.URL,
		OwnerID:        site.OwnerID,
		BotName:        site.BotName,
		WelcomeMessage: site.WelcomeMessage,
		Active:         site.Active,
		CreatedAt:      site.CreatedAt,
	}
}

func (s *Server) handleCreateWebsite(w http.ResponseWriter, r *http.Request, userID string) {
	var req createWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}

	site := &store.Website{
		ID:             uuid.New().String(),
		Name:           req.Name,
		URL:            req.URL,
		OwnerID:        userID,
		BotName:        req.BotName,
		WelcomeMessage: req.WelcomeMessage,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateWebsite(r.Context(), site); err != nil {
		s.logger.Error("creating website failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("website created", "website_id", site.ID, "owner_id", userID)
	writeJSON(w, http.StatusCreated, toWebsiteResponse(site))
}

func (s *Server) handleListWebsites(w http.ResponseWriter, r *http.Request, userID string) {
	sites, err := s.store.ListWebsitesByOwner(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing websites failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]websiteResponse, 0, len(sites))
	for _, site := range sites {
		out = append(out, toWebsiteResponse(site))
	}
	writeJSON(w, http.StatusOK, map[string]any{"websites": out})
}

type conversationResponse struct {
	ID                string            `json:"id"`
	WebsiteID         string            `json:"website_id"`
	UserIdentifier    string            `json:"user_identifier"`
	Status            string            `json:"status"`
	RequiresAttention bool              `json:"requires_attention"`
	TotalMessages     int               `json:"total_messages"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	LastMessageAt     *time.Time        `json:"last_message_at,omitempty"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
}

func toConversationResponse(conv *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:                conv.ID,
		WebsiteID:         conv.WebsiteID,
		UserIdentifier:    conv.UserIdentifier,
		Status:            conv.Status,
		RequiresAttention: conv.RequiresAttention,
		TotalMessages:     conv.TotalMessages,
		Metadata:          conv.Metadata,
		StartedAt:         conv.StartedAt,
		LastMessageAt:     conv.LastMessageAt,
		EndedAt:           conv.EndedAt,
	}
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, userID string) {
	conv, err := s.service.Status(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

type respondRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request, userID string) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	msg, err := s.service.AgentMessage(r.Context(), userID, mux.Vars(r)["id"], req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"created_at":      msg.CreatedAt,
	})
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request, userID string) {
	var req endRequest
	if r.Body != nil {
		// An empty or absent body means the default reason.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "agent_ended"
	}

	conv, err := s.service.EndConversation(r.Context(), userID, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	IsManual       bool      `json:"is_manual"`
	AgentID        string    `json:"agent_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := s.service.History(r.Context(), userID, mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageResponse{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			IsManual:       msg.Manual,
			AgentID:        msg.AgentID,
			CreatedAt:      msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// writeServiceError maps chat service errors onto HTTP statuses. As on
// the websocket side, foreign and missing conversations both read as
// access denied.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrAccessDenied), errors.Is(err, chat.ErrConversationNotFound):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, chat.ErrConversationEnded):
		writeError(w, http.StatusConflict, "conversation has ended")
	default:
		s.logger.Error("api request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
