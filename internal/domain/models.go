package domain

import "time"

// Role is the account type of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to the support side, which may
// read and write every chat room.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	FullName       string    `db:"full_name" json:"full_name"`
	Role           Role      `db:"role" json:"role"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// RoomStatus is the lifecycle state of a chat room.
type RoomStatus string

const (
	RoomActive RoomStatus = "ACTIVE"
	RoomClosed RoomStatus = "CLOSED"
)

// ChatRoom is the support conversation of one customer.
type ChatRoom struct {
	ID         int64      `db:"id"`
	CustomerID int64      `db:"customer_id"`
	Status     RoomStatus `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// ChatMessage represents a single chat message.
type ChatMessage struct {
	ID        int64      `db:"id"`
	RoomID    int64      `db:"room_id"`
	SenderID  int64      `db:"sender_id"`
	Body      string     `db:"body"` // encrypted at rest
	IsRead    bool       `db:"is_read"`
	CreatedAt time.Time  `db:"created_at"`
	ReadAt    *time.Time `db:"read_at"`
}
