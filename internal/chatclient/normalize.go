package chatclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedMessage is returned for payloads that carry no usable message.
var ErrMalformedMessage = errors.New("malformed message payload")

// Normalize turns either broadcast shape into a confirmed Message: the
// room-scoped message object sent with new_message, or the
// {roomId, message} wrapper sent with new_message_notification. Field names
// from both naming conventions are accepted.
func Normalize(raw json.RawMessage) (Message, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return Message{}, err
	}

	if inner, ok := fields["message"]; ok && isObject(inner) {
		innerFields, err := objectFields(inner)
		if err != nil {
			return Message{}, err
		}
		if _, ok := intField(innerFields, roomKeys...); !ok {
			if id, ok := intField(fields, roomKeys...); ok {
				innerFields["roomId"] = json.RawMessage(strconv.FormatInt(id, 10))
			}
		}
		fields = innerFields
	}
	return normalizeFields(fields)
}

var roomKeys = []string{"roomId", "chatRoomId", "room_id"}

func normalizeFields(fields map[string]json.RawMessage) (Message, error) {
	m := Message{State: Confirmed}
	var ok bool
	if m.ID, ok = intField(fields, "id", "messageId", "message_id"); !ok || m.ID <= 0 {
		return Message{}, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	if m.RoomID, ok = intField(fields, roomKeys...); !ok || m.RoomID <= 0 {
		return Message{}, fmt.Errorf("%w: missing room id", ErrMalformedMessage)
	}
	m.ConversationID = conversationID(m.RoomID)

	var sender map[string]json.RawMessage
	if s, ok := fields["sender"]; ok && isObject(s) {
		sender, _ = objectFields(s)
	}
	if m.FromUserID, ok = intField(fields, "senderId", "sender_id", "fromUserId"); !ok && sender != nil {
		m.FromUserID, _ = intField(sender, "id")
	}
	m.SenderName = stringField(fields, "senderName", "sender_name")
	m.SenderRole = stringField(fields, "senderRole", "sender_role")
	if sender != nil {
		if name := stringField(sender, "name", "fullName", "username"); name != "" {
			m.SenderName = name
		}
		if role := stringField(sender, "role"); role != "" {
			m.SenderRole = role
		}
	}

	m.Body = stringField(fields, "message", "content", "body")
	m.IsRead = boolField(fields, "isRead", "is_read")
	m.CreatedAt = timeField(fields, "createdAt", "created_at", "timestamp")
	if t := timeField(fields, "readAt", "read_at"); !t.IsZero() {
		m.ReadAt = &t
	}
	return m, nil
}

func conversationID(roomID int64) string {
	return strconv.FormatInt(roomID, 10)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if !isObject(raw) {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return fields, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func intField(fields map[string]json.RawMessage, keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if v, err := n.Int64(); err == nil {
				return v, true
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		var s string
		if raw, ok := fields[k]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

func boolField(fields map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		var b bool
		if raw, ok := fields[k]; ok && json.Unmarshal(raw, &b) == nil {
			return b
		}
	}
	return false
}

func timeField(fields map[string]json.RawMessage, keys ...string) time.Time {
	for _, k := range keys {
		var t time.Time
		if raw, ok := fields[k]; ok && json.Unmarshal(raw, &t) == nil && !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
