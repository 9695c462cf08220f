package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client is one WebSocket connection. UserID stays empty until the client
// identifies itself, so broadcasts reach it but direct messages do not.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

type identity struct {
	client *Client
	userID string
}

type directMessage struct {
	userID  string
	payload []byte
}

// Manager owns the connection registry. All map access happens on the Run
// goroutine, so the channels are the only way in.
type Manager struct {
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	identify   chan identity
	broadcast  chan []byte
	direct     chan directMessage

	mu     sync.RWMutex
	counts struct {
		clients    int
		identified int
	}

	logger *zap.Logger
}

// NewManager creates a manager; call Run in a goroutine before use.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		identify:   make(chan identity),
		broadcast:  make(chan []byte, sendBufferSize),
		direct:     make(chan directMessage, sendBufferSize),
		logger:     logger,
	}
}

// Run processes registry changes and deliveries until the process exits.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case id := <-m.identify:
			m.identifyClient(id.client, id.userID)

		case payload := <-m.broadcast:
			m.broadcastAll(payload)

		case msg := <-m.direct:
			m.sendToUser(msg.userID, msg.payload)
		}
	}
}

// RegisterClient adds a connection to the registry.
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient removes a connection and closes it.
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Broadcast queues a payload for every connected client.
func (m *Manager) Broadcast(payload []byte) {
	m.broadcast <- payload
}

// SendToUser queues a payload for every connection the user has identified.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.direct <- directMessage{userID: userID, payload: payload}
}

// ClientCount reports connected and identified connection counts.
func (m *Manager) ClientCount() (total, identified int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts.clients, m.counts.identified
}

func (m *Manager) registerClient(client *Client) {
	m.clients[client] = struct{}{}
	m.updateCounts()

	m.logger.Info("client connected", zap.String("client_id", client.ID))
	go client.writePump()
}

func (m *Manager) unregisterClient(client *Client) {
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	if client.UserID != "" {
		if conns, ok := m.byUser[client.UserID]; ok {
			delete(conns, client)
			if len(conns) == 0 {
				delete(m.byUser, client.UserID)
			}
		}
	}
	m.updateCounts()

	close(client.Send)
	client.Conn.Close()

	m.logger.Info("client disconnected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}

func (m *Manager) identifyClient(client *Client, userID string) {
	if _, ok := m.clients[client]; !ok || userID == "" {
		return
	}
	if client.UserID == userID {
		return
	}
	// A re-identifying client moves between users; the old entry must go,
	// or a later targeted send would hit its closed channel.
	if client.UserID != "" {
		if conns, ok := m.byUser[client.UserID]; ok {
			delete(conns, client)
			if len(conns) == 0 {
				delete(m.byUser, client.UserID)
			}
		}
	}
	client.UserID = userID
	conns, ok := m.byUser[userID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.byUser[userID] = conns
	}
	conns[client] = struct{}{}
	m.updateCounts()

	m.logger.Info("client identified",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID))
}

func (m *Manager) broadcastAll(payload []byte) {
	for client := range m.clients {
		m.deliver(client, payload)
	}
}

func (m *Manager) sendToUser(userID string, payload []byte) {
	for client := range m.byUser[userID] {
		m.deliver(client, payload)
	}
}

// deliver drops the connection when its buffer is full so one slow client
// cannot stall the loop.
func (m *Manager) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		m.logger.Warn("client send buffer full, disconnecting",
			zap.String("client_id", client.ID))
		m.unregisterClient(client)
	}
}

func (m *Manager) updateCounts() {
	m.mu.Lock()
	m.counts.clients = len(m.clients)
	m.counts.identified = len(m.byUser)
	m.mu.Unlock()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientFrame is what clients send upstream; only AUTH is acted on.
type clientFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func (c *Client) readPump(m *Manager) {
	defer func() {
		m.unregister <- c
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("websocket read error",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		if frame.Type == "AUTH" && frame.UserID != "" {
			m.identify <- identity{client: c, userID: frame.UserID}
		}
	}
}

// StartReadPump starts the read pump for this client.
func (c *Client) StartReadPump(m *Manager) {
	go c.readPump(m)
}
