package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/financing"
	"invoice-financing/ledger-backend/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Manager streams ledger events to websocket subscribers
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection is one websocket subscriber
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan notifications.Message
	ConnectedAt time.Time
	RemoteAddr  string

	mu      sync.RWMutex
	address string
}

func (c *Connection) filter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *Connection) setFilter(address string) {
	c.mu.Lock()
	c.address = financing.NormalizeAddress(address)
	c.mu.Unlock()
}

// Hub owns the connection set and fans broadcasts out to it
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a manager and starts its hub
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}
	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and subscribes the client. The
// optional address query parameter narrows delivery to that participant.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan notifications.Message, sendBuffer),
		ConnectedAt: time.Now().UTC(),
		RemoteAddr:  r.RemoteAddr,
	}
	connection.setFilter(r.URL.Query().Get("address"))
	connection.Send <- notifications.Message{
		Type:      notifications.MessageTypeWelcome,
		Target:    connection.filter(),
		Timestamp: connection.ConnectedAt,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, fmt.Errorf("websocket manager is closed")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)
	return connection, nil
}

// readPump processes subscription updates until the client goes away
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.done:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var sub notifications.Subscription
		if err := conn.Conn.ReadJSON(&sub); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		if sub.Type == notifications.MessageTypeSubscribe {
			conn.setFilter(sub.Address)
		}
	}
}

// writePump delivers queued messages and keeps the connection alive
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				if !message.Matches(conn.filter()) {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					h.logger.Warn("Dropping slow websocket subscriber", zap.String("connection_id", conn.ID))
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Publish queues a committed ledger event for every matching subscriber. It
// never blocks; events are dropped when the hub is saturated.
func (m *Manager) Publish(ctx context.Context, event financing.Event) {
	m.Broadcast(notifications.FromEvent(event))
}

// Broadcast queues a message without blocking
func (m *Manager) Broadcast(message notifications.Message) {
	select {
	case m.hub.broadcast <- message:
	default:
		m.logger.Warn("Websocket broadcast queue full, dropping message", zap.String("channel", message.Channel))
	}
}

// ConnectionCount returns the number of live subscribers
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close disconnects every subscriber and stops the hub
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done

		m.mu.Lock()
		for id, conn := range m.connections {
			conn.Conn.Close()
			delete(m.connections, id)
		}
		m.mu.Unlock()
	})
}
