package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256

	// Inbound frames allowed per second, with a small burst for reconnects
	// that resubscribe to several calendars at once.
	inboundRate  = 10
	inboundBurst = 20
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
	limiter *rate.Limiter

	mu     sync.Mutex
	topics map[string]struct{}
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		topics:  make(map[string]struct{}),
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

func (c *Client) ReadPump() {
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
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("user_id", c.userID.String()).Msg("websocket read error")
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError("rate_limited", "Too many messages, slow down")
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid_message", "Message is not valid JSON")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeJoinCalendar:
		var payload CalendarPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid_payload", "Invalid join calendar payload")
			return
		}
		if err := c.hub.Join(context.Background(), c, payload.ShareCode); err != nil {
			c.hub.logger.Error().Err(err).Str("share_code", payload.ShareCode).Msg("join calendar failed")
			c.sendError("join_failed", "Could not join calendar")
		}

	case MessageTypeLeaveCalendar:
		var payload CalendarPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid_payload", "Invalid leave calendar payload")
			return
		}
		c.hub.Leave(c, payload.ShareCode)

	default:
		c.sendError("unknown_type", "Unknown message type: "+string(msg.Type))
	}
}

func (c *Client) sendError(code, message string) {
	c.Send(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// Send enqueues a message for this client only.
func (c *Client) Send(msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("failed to build message")
		return
	}
	data, err := marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// Close closes the send channel, which makes WritePump close the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// trySend enqueues without blocking. It reports false when the buffer is
// full or the client is already closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) addTopic(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[code] = struct{}{}
}

func (c *Client) removeTopic(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, code)
}

func (c *Client) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	codes := make([]string, 0, len(c.topics))
	for code := range c.topics {
		codes = append(codes, code)
	}
	return codes
}
