package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/quizarena/go/internal/auth"
	"github.com/mcdev12/quizarena/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Client frame actions
const (
	ActionJoinSession  = "join_session"
	ActionLeaveSession = "leave_session"
)

// ConnectionManager manages WebSocket connections. Every connection is a room
// subscriber; delivery and fan-out live in the broadcaster.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	hub room.Broadcaster
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	id      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

var _ room.Subscriber = (*Connection)(nil)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Origins are enforced by the CORS layer and the token check
			return true
		},
	}
}

// clientMessage is a frame sent by the browser
type clientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

// controlMessage acknowledges a client frame
type controlMessage struct {
	Type      string `json:"type"`
	Action    string `json:"action,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(hub room.Broadcaster, config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		hub:    hub,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The connection is
// subscribed to the user's private channel and, when sessionID is set, to that
// session's channel.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, who auth.Identity, sessionID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		UserID:      who.UserID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)
	cm.hub.Subscribe(connection, room.UserChannel(who.UserID))
	if sessionID != "" {
		cm.hub.Subscribe(connection, room.SessionChannel(sessionID))
	}

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.id).
		Str("user_id", who.UserID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.id] = conn

	log.Debug().
		Str("connection_id", conn.id).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager and every channel
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.id]
	delete(cm.connections, conn.id)
	cm.mu.Unlock()

	if !exists {
		return
	}

	cm.hub.UnsubscribeAll(conn)
	conn.closeSend()

	log.Info().
		Str("connection_id", conn.id).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
}

// CloseAll closes every open connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

// ConnectionStats describes the open connections
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	ConnectedUsers   int `json:"connected_users"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	users := make(map[string]struct{})
	for _, c := range cm.connections {
		users[c.UserID] = struct{}{}
	}
	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ConnectedUsers:   len(users),
	}
}

// ID implements room.Subscriber
func (c *Connection) ID() string { return c.id }

// Deliver queues an encoded event without blocking
func (c *Connection) Deliver(msg room.Message) bool {
	return c.enqueue(msg.Raw)
}

func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// already unregistering
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close closes the socket; the pumps unwind and unregister the connection
func (c *Connection) Close() {
	c.Conn.Close()
}

func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage applies subscribe/unsubscribe frames
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(controlMessage{Type: "error", Error: "invalid message"})
		return
	}

	switch msg.Action {
	case ActionJoinSession, ActionLeaveSession:
		if msg.SessionID == "" {
			c.reply(controlMessage{Type: "error", Action: msg.Action, Error: "sessionId is required"})
			return
		}
		if msg.Action == ActionJoinSession {
			c.Manager.hub.Subscribe(c, room.SessionChannel(msg.SessionID))
		} else {
			c.Manager.hub.Unsubscribe(c, room.SessionChannel(msg.SessionID))
		}
		c.reply(controlMessage{Type: "ack", Action: msg.Action, SessionID: msg.SessionID})
	default:
		c.reply(controlMessage{Type: "error", Action: msg.Action, Error: "unknown action"})
	}

	log.Debug().
		Str("connection_id", c.id).
		Str("user_id", c.UserID).
		Str("action", msg.Action).
		Str("session_id", msg.SessionID).
		Msg("received client message")
}

func (c *Connection) reply(msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("connection_id", c.id).Msg("send buffer full, dropping reply")
	}
}
