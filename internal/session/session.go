// ABOUTME: Connection session owning one websocket, its identity state, and its outbound queue
// ABOUTME: Writer goroutine with ping keepalive; queue overflow drops the connection

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 16 * 1024

	// DefaultQueueSize bounds the outbound queue. A connection that
	// falls this far behind is dropped rather than allowed to stall
	// broadcasts.
	DefaultQueueSize = 256
)

// Role distinguishes the two connection families.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleAgent   Role = "agent"
)

// Session is the per-socket state for one live connection. Identity
// fields are written only from the connection's read loop; Deliver and
// Close are safe from any goroutine.
type Session struct {
	id   string
	role Role

	// UserID is the authenticated user, agent connections only.
	UserID string

	// WebsiteID, ConversationID, and UserIdentifier are visitor
	// bindings, set once identified. Mutated only from the read loop.
	WebsiteID      string
	ConversationID string
	UserIdentifier string

	// SubscribedWebsites tracks the dashboard website subscriptions for
	// subscription_update acks. Read-loop only.
	SubscribedWebsites map[string]struct{}

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// New wraps an upgraded websocket in a Session and starts its writer.
// queueSize <= 0 selects DefaultQueueSize.
func New(conn *websocket.Conn, role Role, queueSize int, logger *slog.Logger) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:                 uuid.New().String(),
		role:               role,
		SubscribedWebsites: make(map[string]struct{}),
		conn:               conn,
		send:               make(chan []byte, queueSize),
		done:               make(chan struct{}),
	}
	s.logger = logger.With("component", "session", "conn_id", s.id, "role", role)

	gometrics.GetOrRegisterCounter("sessions.opened", nil).Inc(1)
	go s.writePump()
	return s
}

// ID returns the unique connection id.
func (s *Session) ID() string {
	return s.id
}

// Role returns the connection family.
func (s *Session) Role() Role {
	return s.role
}

// Deliver queues a frame for the peer without blocking. A full queue
// means the consumer is too slow: the session is closed and false is
// returned so the broker can discard the membership.
func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("outbound queue full, dropping connection")
		s.Close()
		return false
	}
}

// Close tears the connection down. Idempotent and safe to call
// concurrently with an in-flight Deliver.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		gometrics.GetOrRegisterCounter("sessions.closed", nil).Inc(1)
		s.logger.Debug("session closed")
	})
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ReadLoop processes inbound frames strictly in arrival order, invoking
// handle for each one. It returns when the peer disconnects or the
// session is closed; the caller is responsible for broker cleanup.
func (s *Session) ReadLoop(handle func(data []byte)) {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}
		gometrics.GetOrRegisterCounter("frames.in", nil).Inc(1)
		handle(data)
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
			gometrics.GetOrRegisterCounter("frames.out", nil).Inc(1)

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			return
		}
	}
}
