package chatclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "room message",
			raw: `{"id":12,"roomId":5,"senderId":10,"sender":{"id":10,"name":"Hoa","role":"staff"},
				"message":"Dạ em chào anh","isRead":false,"createdAt":"2026-03-01T09:30:00Z"}`,
			want: Message{ID: 12, RoomID: 5, FromUserID: 10, SenderName: "Hoa", SenderRole: "staff",
				Body: "Dạ em chào anh", CreatedAt: at},
		},
		{
			name: "notification wrapper",
			raw:  `{"roomId":5,"message":{"id":12,"senderId":10,"message":"hi","createdAt":"2026-03-01T09:30:00Z"}}`,
			want: Message{ID: 12, RoomID: 5, FromUserID: 10, Body: "hi", CreatedAt: at},
		},
		{
			name: "snake case with string ids",
			raw:  `{"message_id":"12","chatRoomId":"5","sender_id":3,"content":"xin giá","is_read":true,"created_at":"2026-03-01T09:30:00Z"}`,
			want: Message{ID: 12, RoomID: 5, FromUserID: 3, Body: "xin giá", IsRead: true, CreatedAt: at},
		},
		{
			name: "sender only nested",
			raw:  `{"id":12,"room_id":5,"sender":{"id":3,"username":"an"},"body":"ok","timestamp":"2026-03-01T09:30:00Z"}`,
			want: Message{ID: 12, RoomID: 5, FromUserID: 3, SenderName: "an", Body: "ok", CreatedAt: at},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(json.RawMessage(tt.raw))
			require.NoError(t, err)
			tt.want.State = Confirmed
			tt.want.ConversationID = "5"
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeReadAt(t *testing.T) {
	got, err := Normalize(json.RawMessage(`{"id":1,"roomId":2,"senderId":3,"message":"x","isRead":true,"readAt":"2026-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.Equal(t, 10, got.ReadAt.Hour())
}

func TestNormalizeMalformed(t *testing.T) {
	for _, raw := range []string{
		`null`,
		`"hello"`,
		`{"roomId":5,"message":"no id"}`,
		`{"id":1,"message":"no room"}`,
		`{"message":{"id":1,"message":"wrapper without room"}}`,
		`{"id":0,"roomId":5}`,
	} {
		_, err := Normalize(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrMalformedMessage, raw)
	}
}
