package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	ListOnline(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	SoftDelete(ctx context.Context, id int64) error
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
}

// RoomRepository defines persistence operations for chat rooms.
type RoomRepository interface {
	// CreateActive inserts an ACTIVE room for the customer unless one already
	// exists, and returns whichever ACTIVE room is stored afterwards.
	CreateActive(ctx context.Context, customerID int64) (*ChatRoom, error)
	GetByID(ctx context.Context, id int64) (*ChatRoom, error)
	GetActiveForCustomer(ctx context.Context, customerID int64) (*ChatRoom, error)
	ListByStatus(ctx context.Context, status RoomStatus) ([]*ChatRoom, error)
	SetStatus(ctx context.Context, id int64, status RoomStatus) error
}

// MessageRepository defines persistence operations for chat messages.
type MessageRepository interface {
	// Create stores m and bumps the parent room's updated_at.
	Create(ctx context.Context, m *ChatMessage) error
	ListForRoom(ctx context.Context, roomID int64) ([]*ChatMessage, error)
	LastForRoom(ctx context.Context, roomID int64) (*ChatMessage, error)
	// CountUnreadFrom counts unread messages sent by senderID.
	CountUnreadFrom(ctx context.Context, roomID, senderID int64) (int, error)
	// CountUnreadFor counts unread messages readerID did not send.
	CountUnreadFor(ctx context.Context, roomID, readerID int64) (int, error)
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
}
