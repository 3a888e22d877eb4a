// ABOUTME: Shared websocket handler state and route registration
// ABOUTME: Holds the broker, chat service, access checker, and upgrader

package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/visitly/chat-gateway/internal/auth"
	"github.com/visitly/chat-gateway/internal/broker"
	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/store"
)

// NewConversationSentinel in the visitor route path means "start a
// fresh conversation".
const NewConversationSentinel = "new"

// Handler serves both websocket endpoints.
type Handler struct {
	service   *chat.Service
	broker    *broker.Broker
	store     store.Store
	access    auth.Checker
	verifier  auth.TokenVerifier
	queueSize int
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates a websocket handler. queueSize <= 0 selects the
// session default.
func NewHandler(service *chat.Service, b *broker.Broker, st store.Store, access auth.Checker, verifier auth.TokenVerifier, queueSize int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:   service,
		broker:    b,
		store:     st,
		access:    access,
		verifier:  verifier,
		queueSize: queueSize,
		logger:    logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is delegated to the fronting gateway; the
			// widget is embedded on arbitrary customer sites.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register attaches the websocket routes to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/ws/chat/{website_id}/{conversation_id}/{user_identifier}", h.HandleVisitor)
	r.HandleFunc("/ws/chat/{website_id}/{conversation_id}", h.HandleVisitor)
	r.HandleFunc("/ws/dashboard", h.HandleDashboard)
}
