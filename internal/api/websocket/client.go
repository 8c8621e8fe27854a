package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fortuna/scout/internal/view"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffer size for outbound messages
	sendBufferSize = 64
)

// Message types
const (
	MessageTypePage      = "page"
	MessageTypeMode      = "mode"
	MessageTypeHeartbeat = "heartbeat"
	MessageTypeError     = "error"
)

// ServerMessage is sent to the browser
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is received from the browser
type ClientMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

// ErrorMessage is the payload of an error message
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is one socket subscribed to a session
type Client struct {
	ID        string
	SessionID string
	conn      *websocket.Conn
	send      chan ServerMessage
	hub       *Hub

	// done is closed when the hub drops the client; send is never closed
	done      chan struct{}
	closeOnce sync.Once

	modeMu sync.RWMutex
	mode   view.Mode
}

// NewClient creates a client for a session rendered in the given mode
func NewClient(id, sessionID string, conn *websocket.Conn, hub *Hub, mode view.Mode) *Client {
	return &Client{
		ID:        id,
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan ServerMessage, sendBufferSize),
		hub:       hub,
		done:      make(chan struct{}),
		mode:      mode,
	}
}

// Mode returns the sport the client renders
func (c *Client) Mode() view.Mode {
	c.modeMu.RLock()
	defer c.modeMu.RUnlock()
	return c.mode
}

func (c *Client) setMode(m view.Mode) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	c.mode = m
}

// TrySend queues a message without blocking. It returns false when the
// client's buffer is full or the client has been dropped.
func (c *Client) TrySend(msg ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close tells the write pump to hang up. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump handles mode switches and heartbeats from the browser
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] client %s unexpected close: %v", c.ID, err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeMode:
		mode, err := view.ParseMode(msg.Mode)
		if err != nil {
			c.sendError("invalid_mode", err.Error())
			return
		}
		c.setMode(mode)
		c.hub.Refresh(c)
	case MessageTypeHeartbeat:
		c.TrySend(ServerMessage{Type: MessageTypeHeartbeat, SessionID: c.SessionID, Timestamp: time.Now()})
	default:
		c.sendError("unknown_message_type", "unknown message type: "+msg.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.TrySend(ServerMessage{
		Type:      MessageTypeError,
		SessionID: c.SessionID,
		Payload:   ErrorMessage{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// writePump sends queued messages and keeps the connection alive
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				log.Printf("[websocket] client %s write error: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
