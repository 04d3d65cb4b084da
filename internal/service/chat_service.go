package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"caterchat/internal/domain"
	"caterchat/internal/security"
)

// DefaultMaxMessageLength is the longest accepted body, in runes.
const DefaultMaxMessageLength = 5000

// Participant is the display identity attached to rooms and messages.
type Participant struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// MessageResponse is the canonical message shape shared by REST responses,
// socket acks and every broadcast that carries a message.
type MessageResponse struct {
	ID        int64       `json:"id"`
	RoomID    int64       `json:"roomId"`
	SenderID  int64       `json:"senderId"`
	Sender    Participant `json:"sender"`
	Message   string      `json:"message"`
	IsRead    bool        `json:"isRead"`
	CreatedAt time.Time   `json:"createdAt"`
	ReadAt    *time.Time  `json:"readAt,omitempty"`
}

type RoomResponse struct {
	ID          int64             `json:"id"`
	CustomerID  int64             `json:"customerId"`
	Customer    *Participant      `json:"customer,omitempty"`
	Status      domain.RoomStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	LastMessage *MessageResponse  `json:"lastMessage,omitempty"`
	UnreadCount int               `json:"unreadCount"`
}

// RoomWithMessages is a room plus its full history.
type RoomWithMessages struct {
	*RoomResponse
	Messages []*MessageResponse `json:"messages"`
}

// ChatService owns rooms and messages. It is the only writer of chat state.
type ChatService struct {
	users     domain.UserRepository
	rooms     domain.RoomRepository
	messages  domain.MessageRepository
	encryptor *security.Encryptor

	MaxMessageLength int
}

func NewChatService(
	users domain.UserRepository,
	rooms domain.RoomRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
) *ChatService {
	return &ChatService{
		users:            users,
		rooms:            rooms,
		messages:         messages,
		encryptor:        encryptor,
		MaxMessageLength: DefaultMaxMessageLength,
	}
}

// GetOrCreateActiveRoom returns the customer's ACTIVE room with its history,
// creating the room on first access.
func (s *ChatService) GetOrCreateActiveRoom(ctx context.Context, customerID int64) (*RoomWithMessages, error) {
	room, err := s.rooms.GetActiveForCustomer(ctx, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		room, err = s.rooms.CreateActive(ctx, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("get or create room: %w", err)
	}

	msgs, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.CountUnreadFor(ctx, room.ID, customerID)
	if err != nil {
		return nil, err
	}

	resp, err := s.roomResponse(ctx, room, newParticipantCache(s.users))
	if err != nil {
		return nil, err
	}
	resp.UnreadCount = unread
	if len(msgs) > 0 {
		resp.LastMessage = msgs[len(msgs)-1]
	}
	return &RoomWithMessages{RoomResponse: resp, Messages: msgs}, nil
}

// ListRoomsForStaff returns rooms with the given status, or every room when
// status is empty, most recently updated first. UnreadCount counts the
// customer's messages nobody on the staff side has read yet.
func (s *ChatService) ListRoomsForStaff(ctx context.Context, status domain.RoomStatus) ([]*RoomResponse, error) {
	if status != "" && status != domain.RoomActive && status != domain.RoomClosed {
		return nil, fmt.Errorf("%w: unknown room status %q", domain.ErrInvalidInput, status)
	}
	rooms, err := s.rooms.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	cache := newParticipantCache(s.users)
	res := make([]*RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp, err := s.roomResponse(ctx, room, cache)
		if err != nil {
			return nil, err
		}
		last, err := s.messages.LastForRoom(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			if resp.LastMessage, err = s.messageResponse(ctx, last, cache); err != nil {
				return nil, err
			}
		}
		if resp.UnreadCount, err = s.messages.CountUnreadFrom(ctx, room.ID, room.CustomerID); err != nil {
			return nil, err
		}
		res = append(res, resp)
	}
	return res, nil
}

// AppendMessage persists body as a new unread message from senderID and
// returns its canonical form.
func (s *ChatService) AppendMessage(ctx context.Context, roomID, senderID int64, body string) (*MessageResponse, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("%w: room id must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", domain.ErrInvalidInput)
	}
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(body) > s.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidInput, s.MaxMessageLength)
	}

	encrypted, err := s.encryptor.Encrypt(body)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	msg := &domain.ChatMessage{RoomID: roomID, SenderID: senderID, Body: encrypted}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return s.messageResponse(ctx, msg, newParticipantCache(s.users))
}

// ListMessages returns the room's messages oldest first.
func (s *ChatService) ListMessages(ctx context.Context, roomID int64) ([]*MessageResponse, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("%w: room id must be positive", domain.ErrInvalidInput)
	}
	msgs, err := s.messages.ListForRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	cache := newParticipantCache(s.users)
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		r, err := s.messageResponse(ctx, m, cache)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

// MarkRead marks every unread message in the room not sent by readerID as
// read. Calling it again changes nothing.
func (s *ChatService) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	if roomID <= 0 {
		return 0, fmt.Errorf("%w: room id must be positive", domain.ErrInvalidInput)
	}
	return s.messages.MarkRead(ctx, roomID, readerID)
}

func (s *ChatService) Close(ctx context.Context, roomID int64) (*RoomResponse, error) {
	if err := s.rooms.SetStatus(ctx, roomID, domain.RoomClosed); err != nil {
		return nil, err
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.roomResponse(ctx, room, newParticipantCache(s.users))
}

// AuthorizeRoom loads the room and checks that user may act on it: staff on
// any room, a customer only on their own.
func (s *ChatService) AuthorizeRoom(ctx context.Context, user *domain.User, roomID int64) (*domain.ChatRoom, error) {
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	if roomID <= 0 {
		return nil, fmt.Errorf("%w: room id must be positive", domain.ErrInvalidInput)
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if user.Role.IsStaff() || room.CustomerID == user.ID {
		return room, nil
	}
	return nil, domain.ErrForbidden
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *ChatService) roomResponse(ctx context.Context, room *domain.ChatRoom, cache *participantCache) (*RoomResponse, error) {
	customer, err := cache.get(ctx, room.CustomerID)
	if err != nil {
		return nil, err
	}
	return &RoomResponse{
		ID:         room.ID,
		CustomerID: room.CustomerID,
		Customer:   &customer,
		Status:     room.Status,
		CreatedAt:  room.CreatedAt,
		UpdatedAt:  room.UpdatedAt,
	}, nil
}

func (s *ChatService) messageResponse(ctx context.Context, m *domain.ChatMessage, cache *participantCache) (*MessageResponse, error) {
	sender, err := cache.get(ctx, m.SenderID)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Sender:    sender,
		Message:   s.encryptor.Open(m.Body),
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}, nil
}

// participantCache resolves user ids once per request.
type participantCache struct {
	users domain.UserRepository
	seen  map[int64]Participant
}

func newParticipantCache(users domain.UserRepository) *participantCache {
	return &participantCache{users: users, seen: make(map[int64]Participant)}
}

func (c *participantCache) get(ctx context.Context, id int64) (Participant, error) {
	if p, ok := c.seen[id]; ok {
		return p, nil
	}
	u, err := c.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// Removed accounts keep their history readable.
		p := Participant{ID: id, Name: "unknown", Role: domain.RoleCustomer}
		c.seen[id] = p
		return p, nil
	}
	if err != nil {
		return Participant{}, fmt.Errorf("load participant %d: %w", id, err)
	}
	p := Participant{ID: u.ID, Name: u.DisplayName(), Role: u.Role}
	c.seen[id] = p
	return p, nil
}
