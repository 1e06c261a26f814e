package transport

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/logger"
	"github.com/doeshing/extscan-go/internal/ports"
)

const (
	sendBufferSize = 256
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
	maxFrameBytes  = 1 << 20
)

// ErrSinkRegistered is returned when a second sink registers with a hub.
var ErrSinkRegistered = errors.New("event sink already registered")

// SessionController is the session surface a sink may expose to hosts.
type SessionController interface {
	StartMonitoringExtension(extensionID string)
	StopMonitoringExtension(extensionID string)
	GetExtensionMonitoringResults(extensionID string) *domain.ExtensionMonitoringResults
}

// Hub is the WebSocket host environment. Browser-side bootstraps connect to it and stream
// behavior events; monitoring is available while at least one host is connected.
type Hub struct {
	mu       sync.RWMutex
	sink     ports.EventSink
	sessions SessionController
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   ports.Logger
}

// NewHub creates a hub. An empty allowedOrigins list accepts any origin.
func NewHub(allowedOrigins []string, log ports.Logger) *Hub {
	if log == nil {
		log = logger.Nop{}
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
	return h
}

// Available reports whether any host is connected.
func (h *Hub) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// Register attaches the sink that receives events. A sink that also implements
// SessionController handles start, stop and results frames.
func (h *Hub) Register(sink ports.EventSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sink != nil {
		return ErrSinkRegistered
	}
	h.sink = sink
	if sc, ok := sink.(SessionController); ok {
		h.sessions = sc
	}
	return nil
}

// Connections returns the number of connected hosts.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves one host connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan Message, sendBufferSize), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("host connected", map[string]interface{}{"remote": r.RemoteAddr})

	go c.writePump()
	go c.readPump()
}

// Close disconnects every host.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		h.logger.Info("host disconnected", nil)
	}
}

func (h *Hub) handlers() (ports.EventSink, SessionController) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sink, h.sessions
}

// client is one connected host.
type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Send queues msg without blocking; a full queue drops the message.
func (c *client) Send(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.hub.logger.Warn("host send queue full, dropping message", map[string]interface{}{"type": string(msg.Type)})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Warn("websocket write failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.hub.remove(c)
	c.conn.SetReadLimit(maxFrameBytes)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg Message) {
	sink, sessions := c.hub.handlers()
	switch msg.Type {
	case TypePing:
		c.Send(Message{Type: TypePong})
	case TypeEvent:
		ev, err := ParseEventPayload(msg)
		if err != nil {
			c.Send(NewErrorMessage("bad_event", "rejected event", err))
			return
		}
		if sink != nil {
			sink.Ingest(ev)
		}
	case TypeStart, TypeStop, TypeResults:
		payload, err := ParseSessionPayload(msg)
		if err != nil {
			c.Send(NewErrorMessage("bad_session", "rejected session command", err))
			return
		}
		if sessions == nil {
			c.Send(NewErrorMessage("no_sessions", "monitor does not accept session commands", nil))
			return
		}
		c.handleSession(sessions, msg.Type, payload.ExtensionID)
	default:
		c.Send(NewErrorMessage("unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type), nil))
	}
}

func (c *client) handleSession(sessions SessionController, action MessageType, extensionID string) {
	switch action {
	case TypeStart:
		sessions.StartMonitoringExtension(extensionID)
	case TypeStop:
		sessions.StopMonitoringExtension(extensionID)
	case TypeResults:
		c.Send(NewResultsMessage(extensionID, sessions.GetExtensionMonitoringResults(extensionID)))
		return
	}
	monitored := sessions.GetExtensionMonitoringResults(extensionID) != nil
	c.Send(NewAckMessage(extensionID, action, monitored, c.hub.Available()))
}

var _ ports.HostEnvironment = (*Hub)(nil)
