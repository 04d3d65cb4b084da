package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"caterchat/internal/protocol"
)

const writeWait = 10 * time.Second

// Client is the socket transport of a session. It implements Emitter and
// feeds server events into its ViewModel.
type Client struct {
	conn *websocket.Conn
	vm   *ViewModel

	writeMu sync.Mutex

	mu       sync.Mutex
	inflight map[string]sendRequest
}

type sendRequest struct {
	conversationID string
	body           string
}

var _ Emitter = (*Client)(nil)

// Dial opens the socket with token as bearer credential and attaches the
// client to vm.
func Dial(ctx context.Context, wsURL, token string, vm *ViewModel) (*Client, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	c := &Client{
		conn:     conn,
		vm:       vm,
		inflight: make(map[string]sendRequest),
	}
	vm.Attach(c)
	return c, nil
}

func (c *Client) SendMessage(roomID int64, body string) error {
	ackID := uuid.NewString()
	c.mu.Lock()
	c.inflight[ackID] = sendRequest{conversationID: conversationID(roomID), body: body}
	c.mu.Unlock()

	err := c.write(protocol.EventSendMessage, ackID, map[string]any{"roomId": roomID, "message": body})
	if err != nil {
		c.mu.Lock()
		delete(c.inflight, ackID)
		c.mu.Unlock()
	}
	return err
}

func (c *Client) MarkRead(roomID int64) error {
	return c.write(protocol.EventMarkRead, "", roomID)
}

func (c *Client) JoinRoom(roomID int64) error {
	return c.write(protocol.EventJoinRoom, "", roomID)
}

func (c *Client) LeaveRoom(roomID int64) error {
	return c.write(protocol.EventLeaveRoom, "", roomID)
}

func (c *Client) Typing(roomID int64, typing bool) error {
	event := protocol.EventTypingStop
	if typing {
		event = protocol.EventTypingStart
	}
	return c.write(event, "", roomID)
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Run reads server events into the view-model until the connection ends or
// ctx is done. Pending messages are expired periodically.
func (c *Client) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				c.vm.ExpirePending()
			}
		}
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := c.dispatch(frame); err != nil {
			log.WithError(err).Warn("chat client: dropping event")
		}
	}
}

func (c *Client) dispatch(frame []byte) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	switch env.Event {
	case protocol.EventNewMessage:
		_, err = c.vm.ApplyNewMessage(env.Data)
	case protocol.EventNotification:
		_, err = c.vm.ApplyNotification(env.Data)
	case protocol.EventMessagesRead:
		err = c.vm.ApplyMessagesRead(env.Data)
	case protocol.EventUserTyping:
		err = c.vm.ApplyTyping(env.Data)
	case protocol.EventAck:
		err = c.handleAck(env)
	}
	return err
}

// handleAck turns a rejected send into a failed message.
func (c *Client) handleAck(env protocol.Envelope) error {
	if env.AckID == "" {
		return nil
	}
	c.mu.Lock()
	req, ok := c.inflight[env.AckID]
	delete(c.inflight, env.AckID)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var ack protocol.Ack
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		return err
	}
	if !ack.Success {
		c.vm.FailPending(req.conversationID, req.body)
		return errors.New("send rejected: " + ack.Error)
	}
	return nil
}

func (c *Client) write(event, ackID string, data any) error {
	frame, err := protocol.Encode(event, ackID, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
