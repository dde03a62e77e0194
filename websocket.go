package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const recentMessageLimit = 50

type WSManager struct {
	db       *Database
	registry *SessionRegistry
	stager   *AttachmentStager
	clients  map[*WSClient]bool
	handlers map[string]eventHandler

	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mutex      sync.RWMutex
}

type WSClient struct {
	conn     *websocket.Conn
	manager  *WSManager
	send     chan []byte
	lastPing time.Time
}

// eventHandler processes one inbound event for one connection. A non-nil
// error is reported back to that connection only, as an error event.
type eventHandler func(c *WSClient, data json.RawMessage) error

type wsInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func NewWSManager(db *Database, registry *SessionRegistry, stager *AttachmentStager) *WSManager {
	manager := &WSManager{
		db:         db,
		registry:   registry,
		stager:     stager,
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}

	manager.handlers = map[string]eventHandler{
		"user_login":         manager.handleLogin,
		"send_message":       manager.handleSendMessage,
		"send_voice_message": manager.handleSendVoiceMessage,
	}

	go manager.run()
	return manager
}

func (m *WSManager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client] = true
			m.mutex.Unlock()
			log.Printf("Client connected (%d total)", m.clientCount())

		case client := <-m.unregister:
			m.removeClient(client)
			log.Printf("Client disconnected (%d total)", m.clientCount())

		case message := <-m.broadcast:
			m.mutex.RLock()
			clients := make([]*WSClient, 0, len(m.clients))
			for client := range m.clients {
				clients = append(clients, client)
			}
			m.mutex.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow or gone; drop it rather than block the fan-out
					m.removeClient(client)
				}
			}

		case <-ticker.C:
			m.checkClientHealth()
		}
	}
}

func (m *WSManager) clientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (m *WSManager) removeClient(client *WSClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		close(client.send)
	}
}

func (m *WSManager) checkClientHealth() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for client := range m.clients {
		if time.Since(client.lastPing) > 60*time.Second {
			client.conn.Close()
		}
	}
}

// broadcastEvent sends the same event to every connected client.
func (m *WSManager) broadcastEvent(eventType string, data interface{}) {
	jsonData, err := json.Marshal(WSEvent{Type: eventType, Data: data})
	if err != nil {
		log.Printf("Failed to marshal broadcast event: %v", err)
		return
	}

	m.broadcast <- jsonData
}

// broadcastUsers re-reads presence from the store and fans it out. The
// store is the single source of truth; nothing is cached hub-side.
func (m *WSManager) broadcastUsers() error {
	users, err := m.db.GetAllUsers()
	if err != nil {
		return err
	}
	m.broadcastEvent("users_update", users)
	return nil
}

func (m *WSManager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		conn:     conn,
		manager:  m,
		send:     make(chan []byte, 256),
		lastPing: time.Now(),
	}

	// Queue the snapshot before the pumps start so it is the first thing
	// this connection receives. A snapshot failure is scoped to this
	// connection only.
	if err := client.queueSnapshot(); err != nil {
		log.Printf("Failed to build snapshot: %v", err)
		client.queueEvent("error", "Failed to load initial data")
	}

	m.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) queueSnapshot() error {
	messages, err := c.manager.db.GetRecentMessages(recentMessageLimit)
	if err != nil {
		return err
	}
	users, err := c.manager.db.GetAllUsers()
	if err != nil {
		return err
	}

	c.queueEvent("initial_data", InitialData{Messages: messages, Users: users})
	return nil
}

// queueEvent writes an event to this connection only.
func (c *WSClient) queueEvent(eventType string, data interface{}) {
	jsonData, err := json.Marshal(WSEvent{Type: eventType, Data: data})
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", eventType, err)
		return
	}

	select {
	case c.send <- jsonData:
	default:
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()

		// Presence update is independent of any event that was mid-flight
		// when the connection dropped.
		if username, ok := c.manager.registry.Unbind(c); ok {
			if err := c.manager.db.SetUserStatus(username, StatusOffline); err != nil {
				log.Printf("Failed to mark %s offline: %v", username, err)
			} else if err := c.manager.broadcastUsers(); err != nil {
				log.Printf("Failed to broadcast presence for %s: %v", username, err)
			}
		}
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.lastPing = time.Now()
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg wsInbound
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("Invalid JSON from client: %v", err)
			continue
		}

		c.handleEvent(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches one inbound event. Handler failures never crash
// the hub; they surface as an error event on the originating connection.
func (c *WSClient) handleEvent(msg wsInbound) {
	handler, ok := c.manager.handlers[msg.Type]
	if !ok {
		log.Printf("Unknown event type: %s", msg.Type)
		return
	}

	if err := handler(c, msg.Data); err != nil {
		log.Printf("Event %s failed: %v", msg.Type, err)
		c.queueEvent("error", err.Error())
	}
}

func (m *WSManager) handleLogin(c *WSClient, data json.RawMessage) error {
	var username string
	if err := json.Unmarshal(data, &username); err != nil || username == "" {
		return errInvalidPayload("user_login")
	}

	// Last-bound-wins on re-login, but the abandoned username must not
	// stay online until disconnect.
	if prev, ok := m.registry.Username(c); ok && prev != username {
		if err := m.db.SetUserStatus(prev, StatusOffline); err != nil {
			log.Printf("Failed to mark %s offline on rebind: %v", prev, err)
		}
	}

	if err := m.db.SetUserStatus(username, StatusOnline); err != nil {
		return err
	}

	m.registry.Bind(c, username)
	log.Printf("%s logged in", username)

	return m.broadcastUsers()
}

func (m *WSManager) handleSendMessage(c *WSClient, data json.RawMessage) error {
	var payload SendMessageData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errInvalidPayload("send_message")
	}
	if payload.Body == "" {
		return errInvalidPayload("send_message")
	}
	if err := m.checkSender(c, payload.Sender); err != nil {
		return err
	}

	msg, err := m.db.RecordMessage(payload.Sender, payload.Body, nil)
	if err != nil {
		return err
	}

	m.broadcastEvent("new_message", msg)
	return nil
}

func (m *WSManager) handleSendVoiceMessage(c *WSClient, data json.RawMessage) error {
	var payload SendVoiceMessageData
	if err := json.Unmarshal(data, &payload); err != nil || payload.VoiceFile == "" {
		return errInvalidPayload("send_voice_message")
	}
	if err := m.checkSender(c, payload.Sender); err != nil {
		return err
	}

	// The upload must have completed out-of-band; refuse to persist a
	// message pointing at nothing.
	size, err := m.stager.Stat(payload.VoiceFile)
	if err != nil {
		return err
	}

	msg, err := m.db.RecordMessage(payload.Sender, "", &VoiceMeta{
		VoiceFile:    payload.VoiceFile,
		OriginalName: payload.OriginalName,
		FileSize:     size,
		Duration:     payload.Duration,
	})
	if err != nil {
		return err
	}

	m.broadcastEvent("new_message", msg)
	return nil
}

// checkSender rejects events whose claimed sender does not match the
// connection's bound username.
func (m *WSManager) checkSender(c *WSClient, sender string) error {
	bound, ok := m.registry.Username(c)
	if !ok {
		return errNotLoggedIn
	}
	if bound != sender {
		return errSenderMismatch
	}
	return nil
}
