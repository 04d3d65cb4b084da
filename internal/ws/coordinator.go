package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"caterchat/internal/domain"
	"caterchat/internal/metrics"
	"caterchat/internal/protocol"
	"caterchat/internal/service"
)

// ChatStore is the part of service.ChatService the coordinator mutates.
type ChatStore interface {
	AuthorizeRoom(ctx context.Context, user *domain.User, roomID int64) (*domain.ChatRoom, error)
	AppendMessage(ctx context.Context, roomID, senderID int64, body string) (*service.MessageResponse, error)
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
}

// PresenceStore persists the online flag of users.
type PresenceStore interface {
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
}

// NotifyScope selects who receives new_message_notification.
type NotifyScope string

const (
	// NotifyStaff reaches every staff connection and the room's customer.
	NotifyStaff NotifyScope = "staff"
	// NotifyAll reaches every connection.
	NotifyAll NotifyScope = "all"
)

type CoordinatorConfig struct {
	NotifyScope NotifyScope
	// OpTimeout bounds each store call made on behalf of a socket event.
	OpTimeout time.Duration
}

// Coordinator is the only path from socket events to the store, and the
// only caller of broadcasts that follow a store mutation. A mutation is
// always persisted before anything is broadcast.
type Coordinator struct {
	registry *Registry
	out      Broadcaster
	chat     ChatStore
	presence PresenceStore
	cfg      CoordinatorConfig
}

// NewCoordinator wires the coordinator. out may be nil, in which case
// broadcasts go straight to the registry; presence may be nil.
func NewCoordinator(registry *Registry, out Broadcaster, chat ChatStore, presence PresenceStore, cfg CoordinatorConfig) *Coordinator {
	if out == nil {
		out = registry
	}
	if cfg.NotifyScope == "" {
		cfg.NotifyScope = NotifyStaff
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	return &Coordinator{
		registry: registry,
		out:      out,
		chat:     chat,
		presence: presence,
		cfg:      cfg,
	}
}

// SendMessage authorizes, persists and fans out one message. The canonical
// message goes to the room channel as new_message and to the notification
// channel wrapped as new_message_notification.
func (co *Coordinator) SendMessage(ctx context.Context, user *domain.User, roomID int64, body string) (*service.MessageResponse, error) {
	room, err := co.chat.AuthorizeRoom(ctx, user, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomClosed {
		return nil, domain.ErrRoomClosed
	}
	msg, err := co.chat.AppendMessage(ctx, room.ID, user.ID, body)
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.Inc()

	co.out.BroadcastToRoom(room.ID, protocol.EventNewMessage, msg, "")
	note := protocol.Notification{RoomID: room.ID, Message: msg}
	if co.cfg.NotifyScope == NotifyAll {
		co.out.BroadcastToAll(protocol.EventNotification, note)
	} else {
		co.out.BroadcastToStaff(protocol.EventNotification, note)
		co.out.BroadcastToUser(room.CustomerID, protocol.EventNotification, note)
	}
	return msg, nil
}

// MarkRead marks the room read for user and tells the room.
func (co *Coordinator) MarkRead(ctx context.Context, user *domain.User, roomID int64) (int64, error) {
	room, err := co.chat.AuthorizeRoom(ctx, user, roomID)
	if err != nil {
		return 0, err
	}
	n, err := co.chat.MarkRead(ctx, room.ID, user.ID)
	if err != nil {
		return 0, err
	}
	co.out.BroadcastToRoom(room.ID, protocol.EventMessagesRead, protocol.MessagesRead{RoomID: room.ID, UserID: user.ID}, "")
	return n, nil
}

// Serve runs the read loop of an authenticated client and cleans up when
// the peer goes away. Events from one client are handled one at a time.
func (co *Coordinator) Serve(ctx context.Context, c *Client, first bool) {
	user := c.User()
	logger := c.logger()
	logger.Info("client connected")
	if first {
		co.setPresence(user, true)
	}
	defer func() {
		if co.registry.Unregister(c) {
			co.setPresence(user, false)
		}
		logger.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Debug("read failed")
			}
			return
		}
		co.HandleFrame(ctx, c, frame)
	}
}

// HandleFrame decodes and dispatches one inbound frame.
func (co *Coordinator) HandleFrame(ctx context.Context, c *Client, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		metrics.Events.WithLabelValues("invalid", "failure").Inc()
		c.Emit(protocol.EventAck, "", protocol.Ack{Success: false, Error: "invalid payload"})
		return
	}
	co.Handle(ctx, c, env)
}

// Handle processes one decoded event from c.
func (co *Coordinator) Handle(ctx context.Context, c *Client, env protocol.Envelope) {
	user := c.User()
	if user == nil {
		co.fail(c, env, domain.ErrUnauthorized, "handle event")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, co.cfg.OpTimeout)
	defer cancel()

	switch env.Event {
	case protocol.EventSendMessage:
		var req protocol.SendMessage
		if err := json.Unmarshal(env.Data, &req); err != nil {
			co.fail(c, env, domain.ErrInvalidInput, "send message")
			return
		}
		roomID, err := protocol.ParseRoomID(req.RoomID)
		if err != nil {
			co.fail(c, env, err, "send message")
			return
		}
		msg, err := co.SendMessage(ctx, user, roomID, req.Message)
		if err != nil {
			co.fail(c, env, err, "send message")
			return
		}
		co.succeed(c, env, msg, true)

	case protocol.EventMarkRead:
		roomID, err := protocol.ParseRoomID(env.Data)
		if err != nil {
			co.fail(c, env, err, "mark messages read")
			return
		}
		if _, err := co.MarkRead(ctx, user, roomID); err != nil {
			co.fail(c, env, err, "mark messages read")
			return
		}
		co.succeed(c, env, nil, false)

	case protocol.EventTypingStart, protocol.EventTypingStop:
		roomID, err := protocol.ParseRoomID(env.Data)
		if err != nil {
			co.fail(c, env, err, "relay typing")
			return
		}
		if _, err := co.chat.AuthorizeRoom(ctx, user, roomID); err != nil {
			co.fail(c, env, err, "relay typing")
			return
		}
		co.out.BroadcastToRoom(roomID, protocol.EventUserTyping, protocol.Typing{
			RoomID:   roomID,
			UserID:   user.ID,
			IsTyping: env.Event == protocol.EventTypingStart,
		}, c.ID)
		co.succeed(c, env, nil, false)

	case protocol.EventJoinRoom:
		roomID, err := protocol.ParseRoomID(env.Data)
		if err != nil {
			co.fail(c, env, err, "join room")
			return
		}
		if _, err := co.chat.AuthorizeRoom(ctx, user, roomID); err != nil {
			co.fail(c, env, err, "join room")
			return
		}
		co.registry.Join(c, roomID)
		co.succeed(c, env, nil, false)

	case protocol.EventLeaveRoom:
		roomID, err := protocol.ParseRoomID(env.Data)
		if err != nil {
			co.fail(c, env, err, "leave room")
			return
		}
		co.registry.Leave(c, roomID)
		co.succeed(c, env, nil, false)

	default:
		metrics.Events.WithLabelValues("unknown", "failure").Inc()
		c.logger().WithField("event", env.Event).Warn("unknown event")
		c.Emit(protocol.EventAck, env.AckID, protocol.Ack{Success: false, Error: "unknown event"})
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

// succeed acks a handled event. Events other than send_message are only
// acked when the client asked for it with an ackId.
func (co *Coordinator) succeed(c *Client, env protocol.Envelope, message any, always bool) {
	metrics.Events.WithLabelValues(env.Event, "success").Inc()
	if !always && env.AckID == "" {
		return
	}
	c.Emit(protocol.EventAck, env.AckID, protocol.Ack{Success: true, Message: message})
}

// fail sends a failure ack to c only. Internal detail never leaves the
// server.
func (co *Coordinator) fail(c *Client, env protocol.Envelope, err error, action string) {
	metrics.Events.WithLabelValues(env.Event, "failure").Inc()
	msg := AckError(err, action)
	entry := c.logger().WithField("event", env.Event).WithError(err)
	if msg == "failed to "+action {
		entry.Error("event failed")
	} else {
		entry.Info("event rejected")
	}
	c.Emit(protocol.EventAck, env.AckID, protocol.Ack{Success: false, Error: msg})
}

// AckError maps an error to the text a client may see.
func AckError(err error, action string) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return "room not found"
	case errors.Is(err, domain.ErrForbidden):
		return "not allowed to access this room"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrRoomClosed):
		return err.Error()
	default:
		return "failed to " + action
	}
}

func (co *Coordinator) setPresence(user *domain.User, online bool) {
	if co.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), co.cfg.OpTimeout)
		err := co.presence.SetOnlineStatus(ctx, user.ID, online)
		cancel()
		if err != nil {
			log.WithError(err).WithField("user_id", user.ID).Warn("persist presence")
		}
	}
	event := protocol.EventUserOffline
	if online {
		event = protocol.EventUserOnline
	}
	co.out.BroadcastToStaff(event, protocol.Presence{UserID: user.ID, Username: user.Username, At: time.Now().UTC()})
}
