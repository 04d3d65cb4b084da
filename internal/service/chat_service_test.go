package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caterchat/internal/domain"
	"caterchat/internal/security"
	"caterchat/internal/service"
	"caterchat/internal/store/sqlite"
)

type chatFixture struct {
	svc      *service.ChatService
	users    *sqlite.UserRepo
	customer *domain.User
	other    *domain.User
	admin    *domain.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	enc, err := security.NewEncryptor("test-secret", nil)
	require.NoError(t, err)

	users := sqlite.NewUserRepo(db)
	f := &chatFixture{
		svc:   service.NewChatService(users, sqlite.NewRoomRepo(db), sqlite.NewMessageRepo(db), enc),
		users: users,
	}
	f.customer = f.user(t, "mai", "Trần Thị Mai", domain.RoleCustomer)
	f.other = f.user(t, "long", "", domain.RoleCustomer)
	f.admin = f.user(t, "admin", "Hỗ trợ", domain.RoleAdmin)
	return f
}

func (f *chatFixture) user(t *testing.T, username, fullName string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, FullName: fullName, Role: role, HashedPassword: "x"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func TestGetOrCreateActiveRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomActive, first.Status)
	assert.NotNil(t, first.Messages)
	assert.Empty(t, first.Messages)
	assert.Nil(t, first.LastMessage)
	assert.Equal(t, "Trần Thị Mai", first.Customer.Name)

	second, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateConcurrentKeepsMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
			if !assert.NoError(t, err) {
				return
			}
			_, err = f.svc.AppendMessage(ctx, room.ID, f.customer.ID, fmt.Sprintf("hello %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rooms, err := f.svc.ListRoomsForStaff(ctx, domain.RoomActive)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	msgs, err := f.svc.ListMessages(ctx, rooms[0].ID)
	require.NoError(t, err)
	assert.Len(t, msgs, n)
}

func TestAppendMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)

	msg, err := f.svc.AppendMessage(ctx, room.ID, f.customer.ID, "Xin chào")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, room.ID, msg.RoomID)
	assert.Equal(t, "Xin chào", msg.Message)
	assert.False(t, msg.IsRead)
	assert.Equal(t, "Trần Thị Mai", msg.Sender.Name)
	assert.Equal(t, domain.RoleCustomer, msg.Sender.Role)

	_, err = f.svc.AppendMessage(ctx, 999, f.customer.ID, "hi")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.AppendMessage(ctx, room.ID, f.customer.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.AppendMessage(ctx, room.ID, f.customer.ID, strings.Repeat("á", service.DefaultMaxMessageLength+1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.AppendMessage(ctx, 0, f.customer.ID, "hi")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListMessagesNoLostMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := f.customer.ID
			if i%2 == 1 {
				sender = f.admin.ID
			}
			_, err := f.svc.AppendMessage(ctx, room.ID, sender, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := f.svc.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	ids := make(map[int64]struct{}, n)
	for i, m := range msgs {
		ids[m.ID] = struct{}{}
		if i > 0 {
			prev := msgs[i-1]
			assert.True(t, prev.CreatedAt.Before(m.CreatedAt) ||
				(prev.CreatedAt.Equal(m.CreatedAt) && prev.ID < m.ID))
		}
	}
	assert.Len(t, ids, n)

	_, err = f.svc.ListMessages(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMarkRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, room.ID, f.customer.ID, "Cho em hỏi thực đơn")
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, room.ID, f.admin.ID, "Dạ, chị cần mấy bàn?")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, room.ID, f.customer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = f.svc.MarkRead(ctx, room.ID, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	view, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, view.UnreadCount)
	for _, m := range view.Messages {
		if m.SenderID == f.admin.ID {
			assert.True(t, m.IsRead)
			assert.NotNil(t, m.ReadAt)
		} else {
			assert.False(t, m.IsRead)
		}
	}
}

func TestListRoomsForStaff(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	a, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	b, err := f.svc.GetOrCreateActiveRoom(ctx, f.other.ID)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, a.ID, f.customer.ID, "first")
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, b.ID, f.other.ID, "second")
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, b.ID, f.admin.ID, "reply")
	require.NoError(t, err)

	rooms, err := f.svc.ListRoomsForStaff(ctx, domain.RoomActive)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, b.ID, rooms[0].ID)
	assert.Equal(t, "reply", rooms[0].LastMessage.Message)
	assert.Equal(t, 1, rooms[0].UnreadCount)
	assert.Equal(t, "long", rooms[0].Customer.Name)
	assert.Equal(t, a.ID, rooms[1].ID)

	_, err = f.svc.Close(ctx, a.ID)
	require.NoError(t, err)
	active, err := f.svc.ListRoomsForStaff(ctx, domain.RoomActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := f.svc.ListRoomsForStaff(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListRoomsForStaff(ctx, "ARCHIVED")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCloseThenReopen(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	closed, err := f.svc.Close(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomClosed, closed.Status)

	next, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.NotEqual(t, room.ID, next.ID)

	_, err = f.svc.Close(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthorizeRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room, err := f.svc.GetOrCreateActiveRoom(ctx, f.customer.ID)
	require.NoError(t, err)

	_, err = f.svc.AuthorizeRoom(ctx, f.customer, room.ID)
	assert.NoError(t, err)
	_, err = f.svc.AuthorizeRoom(ctx, f.admin, room.ID)
	assert.NoError(t, err)
	_, err = f.svc.AuthorizeRoom(ctx, f.other, room.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.AuthorizeRoom(ctx, f.admin, 777)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.AuthorizeRoom(ctx, f.customer, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.AuthorizeRoom(ctx, nil, room.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
