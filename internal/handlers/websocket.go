package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	clientQueue    = 64
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub streams ledger events to connected adapter clients. It
// implements services.Broadcaster.
type WebSocketHub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	log        *logrus.Entry
}

// Client is one adapter connection. Only writePump writes to Conn.
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	send      chan *Message
	closed    chan struct{}
	closeOnce sync.Once
}

type Message struct {
	Type   string      `json:"type"`
	UserID int64       `json:"user_id,omitempty"`
	Data   interface{} `json:"data"`
}

func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, broadcastQueue),
		done:       make(chan struct{}),
		log:        logger.Component("websocket"),
	}

	go hub.run()
	return hub
}

// Publish queues the event without blocking; it is dropped when the
// queue is full.
func (hub *WebSocketHub) Publish(event models.LedgerEvent) {
	msg := &Message{
		Type:   string(event.Type),
		UserID: event.UserID,
		Data:   event,
	}

	select {
	case hub.broadcast <- msg:
	default:
		hub.log.WithField("type", event.Type).Warn("Event queue full, dropping event")
	}
}

// Close stops the hub and disconnects every client.
func (hub *WebSocketHub) Close() {
	close(hub.done)
}

func (hub *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithField("error", err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		SessionID: c.GetString("session_id"),
		Conn:      conn,
		send:      make(chan *Message, clientQueue),
		closed:    make(chan struct{}),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	defer func() {
		select {
		case hub.unregister <- client:
		case <-hub.done:
		}
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.log.WithField("error", err).Warn("WebSocket read failed")
			}
			return
		}

		if msg.Type == "PING" {
			client.queue(&Message{
				Type: "PONG",
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
		}
	}
}

func (c *Client) queue(msg *Message) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(msg); err != nil {
				c.close()
				c.Conn.Close()
				return
			}
		case <-c.closed:
			c.Conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			c.Conn.Close()
			return
		}
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client] = struct{}{}
			hub.log.WithField("session_id", client.SessionID).Info("Client registered")

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				client.close()
				hub.log.WithField("session_id", client.SessionID).Info("Client unregistered")
			}

		case message := <-hub.broadcast:
			for client := range hub.clients {
				if !client.queue(message) {
					hub.log.WithField("session_id", client.SessionID).Warn("Client too slow, dropping connection")
					delete(hub.clients, client)
					client.close()
				}
			}

		case <-hub.done:
			for client := range hub.clients {
				client.close()
			}
			hub.clients = nil
			return
		}
	}
}
