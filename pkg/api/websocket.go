package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/specsync/pkg/auth"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Time allowed to authorize a subscription.
	subscribeTimeout = 5 * time.Second
)

// createUpgrader creates a WebSocket upgrader with origin validation.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	originSet := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// If no origins configured, reject all cross-origin requests.
			if len(allowedOrigins) == 0 {
				return r.Header.Get("Origin") == ""
			}

			if allowAll {
				return true
			}

			return originSet[r.Header.Get("Origin")]
		},
	}
}

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Server -> Client messages.
	MessageTypeTaskState    MessageType = "task_state"
	MessageTypeSystemStatus MessageType = "system_status"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"

	// Client -> Server messages.
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
)

// Message represents a WebSocket message.
type Message struct {
	Type      MessageType `json:"type"`
	ProjectID string      `json:"project_id,omitempty"`
	Payload   any         `json:"payload,omitempty"`
}

// Hub maintains the set of active clients and fans task updates out to the
// clients subscribed to each project.
type Hub struct {
	log  logrus.FieldLogger
	auth auth.Service

	// Registered clients.
	clients map[*Client]bool

	// Clients subscribed to specific projects.
	subscriptions map[string]map[*Client]bool

	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Messages for the subscribers of one project.
	projectBroadcast chan *projectMessage

	mu sync.RWMutex
}

type projectMessage struct {
	projectID string
	msg       *Message
}

// NewHub creates a new WebSocket hub. Subscriptions are authorized against
// authSvc with the token the client connected with.
func NewHub(log logrus.FieldLogger, authSvc auth.Service) *Hub {
	return &Hub{
		log:              log.WithField("component", "websocket"),
		auth:             authSvc,
		clients:          make(map[*Client]bool),
		subscriptions:    make(map[string]map[*Client]bool),
		unregister:       make(chan *Client),
		done:             make(chan struct{}),
		projectBroadcast: make(chan *projectMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Stopping WebSocket hub")

			// Closing each send channel makes the write pump send a close
			// frame, which in turn ends the read pump.
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()

			return

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

			h.log.WithField("client", client.id).Debug("Client unregistered")

		case pm := <-h.projectBroadcast:
			h.mu.Lock()

			for client := range h.subscriptions[pm.projectID] {
				select {
				case client.send <- pm.msg:
				default:
					h.removeLocked(client)
				}
			}

			h.mu.Unlock()
		}
	}
}

// Register adds a client. It happens before the client's pumps start so a
// subscribe sent immediately after the handshake finds the client registered.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.log.WithField("client", client.id).Debug("Client registered")
}

// removeLocked drops a client and closes its send channel. Callers hold h.mu.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	for projectID, clients := range h.subscriptions {
		delete(clients, client)

		if len(clients) == 0 {
			delete(h.subscriptions, projectID)
		}
	}
}

// Subscribe adds a client to a project's subscription list.
func (h *Hub) Subscribe(client *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	if _, ok := h.subscriptions[projectID]; !ok {
		h.subscriptions[projectID] = make(map[*Client]bool)
	}

	h.subscriptions[projectID][client] = true

	h.log.WithFields(logrus.Fields{
		"client":     client.id,
		"project_id": projectID,
	}).Debug("Client subscribed to project")
}

// Unsubscribe removes a client from a project's subscription list.
func (h *Hub) Unsubscribe(client *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.subscriptions[projectID]; ok {
		delete(clients, client)

		if len(clients) == 0 {
			delete(h.subscriptions, projectID)
		}
	}

	h.log.WithFields(logrus.Fields{
		"client":     client.id,
		"project_id": projectID,
	}).Debug("Client unsubscribed from project")
}

// BroadcastToProject sends a message to all clients subscribed to a project.
func (h *Hub) BroadcastToProject(projectID string, msg *Message) {
	msg.ProjectID = projectID

	select {
	case h.projectBroadcast <- &projectMessage{projectID: projectID, msg: msg}:
	default:
		h.log.Warn("Project broadcast channel full, dropping message")
	}
}

// BroadcastTaskState broadcasts a task state change.
func (h *Hub) BroadcastTaskState(task *store.Task) {
	snapshot := *task

	h.BroadcastToProject(task.ProjectID, &Message{
		Type:    MessageTypeTaskState,
		Payload: &snapshot,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a project.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscriptions[projectID])
}

// Client represents a WebSocket client connection.
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	token string
	send  chan *Message
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, token, id string) *Client {
	return &Client{
		id:    id,
		hub:   hub,
		conn:  conn,
		token: token,
		send:  make(chan *Message, 256),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}

		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket read error")
			}

			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.WithError(err).Warn("Failed to parse WebSocket message")

			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.hub.log.WithError(err).Warn("Failed to marshal WebSocket message")

				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a message for this client unless its buffer is full.
func (c *Client) reply(msg *Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if _, ok := c.hub.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.hub.log.WithField("client", c.id).Warn("Client buffer full, dropping reply")
	}
}

// handleMessage handles incoming messages from the client.
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.ProjectID == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		_, err := c.hub.auth.AuthenticateProject(ctx, msg.ProjectID, c.token)
		cancel()

		if err != nil {
			c.reply(&Message{
				Type:      MessageTypeError,
				ProjectID: msg.ProjectID,
				Payload:   map[string]string{"error": err.Error()},
			})

			return
		}

		c.hub.Subscribe(c, msg.ProjectID)
		c.reply(&Message{Type: MessageTypeSubscribed, ProjectID: msg.ProjectID})

	case MessageTypeUnsubscribe:
		if msg.ProjectID != "" {
			c.hub.Unsubscribe(c, msg.ProjectID)
			c.reply(&Message{Type: MessageTypeUnsubscribed, ProjectID: msg.ProjectID})
		}

	case MessageTypePing:
		c.reply(&Message{Type: MessageTypeSystemStatus, Payload: map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}})

	default:
		c.hub.log.WithField("type", msg.Type).Warn("Unknown message type")
	}
}

// ServeWs handles WebSocket requests from the peer. The connection token is
// checked per project when the client subscribes.
func ServeWs(hub *Hub, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)

		return
	}

	upgrader := createUpgrader(allowedOrigins)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Error("Failed to upgrade WebSocket")

		return
	}

	clientID := r.Header.Get("X-Request-ID")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := NewClient(hub, conn, token, clientID)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
