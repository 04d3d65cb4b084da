// Package protocol defines the JSON frames exchanged over the chat socket.
//
// Every frame is an Envelope. Client requests may carry an ackId; the server
// answers those with an "ack" frame echoing it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caterchat/internal/domain"
)

// Client to server.
const (
	EventJoinRoom    = "join_chat_room"
	EventLeaveRoom   = "leave_chat_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_messages_read"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Server to client.
const (
	EventAck          = "ack"
	EventNewMessage   = "new_message"
	EventNotification = "new_message_notification"
	EventMessagesRead = "messages_read"
	EventUserTyping   = "user_typing"
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
)

// ErrInvalidRoomID matches domain.ErrInvalidInput under errors.Is.
var ErrInvalidRoomID = fmt.Errorf("%w: roomId must be a positive integer", domain.ErrInvalidInput)

type Envelope struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers a client request.
type Ack struct {
	Success bool   `json:"success"`
	Message any    `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SendMessage struct {
	RoomID  json.RawMessage `json:"roomId"`
	Message string          `json:"message"`
}

type MessagesRead struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId"`
}

type Typing struct {
	RoomID   int64 `json:"roomId"`
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

type Notification struct {
	RoomID  int64 `json:"roomId"`
	Message any   `json:"message"`
}

type Presence struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username,omitempty"`
	At       time.Time `json:"at"`
}

// Encode builds a frame for event with data as its payload.
func Encode(event, ackID string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, AckID: ackID, Data: raw})
}

// Decode parses one frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("%w: malformed frame", domain.ErrInvalidInput)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event", domain.ErrInvalidInput)
	}
	return env, nil
}

// ParseRoomID reads a room id sent either bare (5 or "5") or as an object
// carrying roomId or room_id.
func ParseRoomID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, ErrInvalidRoomID
	}

	if raw[0] == '{' {
		var obj struct {
			RoomID     json.RawMessage `json:"roomId"`
			RoomIDAlt  json.RawMessage `json:"room_id"`
			ChatRoomID json.RawMessage `json:"chatRoomId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, ErrInvalidRoomID
		}
		for _, v := range []json.RawMessage{obj.RoomID, obj.RoomIDAlt, obj.ChatRoomID} {
			if len(v) > 0 {
				return ParseRoomID(v)
			}
		}
		return 0, ErrInvalidRoomID
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrInvalidRoomID
		}
		s = strings.TrimSpace(s)
	} else {
		s = string(raw)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidRoomID
	}
	return id, nil
}
