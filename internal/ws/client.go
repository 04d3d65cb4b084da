package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"caterchat/internal/domain"
	"caterchat/internal/metrics"
	"caterchat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// DefaultSendQueue is the number of outbound frames buffered per client.
	DefaultSendQueue = 64
)

// Client is one live socket. Frames for it are queued on send and written
// by a single writePump goroutine.
type Client struct {
	ID   string
	conn *websocket.Conn
	user *domain.User

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueue
	}
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, queueSize),
	}
}

// User is nil until the registry has registered the client.
func (c *Client) User() *domain.User {
	return c.user
}

// Send queues a frame without blocking. It reports false when the frame was
// dropped because the client is closed or its queue is full.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.DroppedFrames.Inc()
		c.logger().Warn("send queue full, dropping frame")
		return false
	}
}

// Emit encodes and queues one event.
func (c *Client) Emit(event, ackID string, data any) bool {
	frame, err := protocol.Encode(event, ackID, data)
	if err != nil {
		c.logger().WithError(err).Error("encode frame")
		return false
	}
	return c.Send(frame)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) logger() *log.Entry {
	entry := log.WithField("client_id", c.ID)
	if c.user != nil {
		entry = entry.WithField("user_id", c.user.ID)
	}
	return entry
}

// writePump drains the send queue until it is closed, pinging the peer so
// dead connections are noticed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger().WithError(err).Debug("write failed")
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
