package chatclient_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caterchat/internal/chatclient"
	"caterchat/internal/domain"
	"caterchat/internal/security"
	"caterchat/internal/service"
	"caterchat/internal/store/sqlite"
	"caterchat/internal/ws"
)

type harness struct {
	url    string
	tokens *security.TokenService
	users  *sqlite.UserRepo
	chat   *service.ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	enc, err := security.NewEncryptor("test-secret", nil)
	require.NoError(t, err)
	tokens := security.NewTokenService("jwt-secret", time.Hour)
	users := sqlite.NewUserRepo(db)
	auth := service.NewAuthService(users, tokens, security.NewPasswordHasher(4))
	chat := service.NewChatService(users, sqlite.NewRoomRepo(db), sqlite.NewMessageRepo(db), enc)

	reg := ws.NewRegistry(auth)
	co := ws.NewCoordinator(reg, nil, chat, service.NewUserService(users), ws.CoordinatorConfig{})
	srv := httptest.NewServer(ws.MakeHandler(reg, co, ws.HandlerConfig{AllowNoOrigin: true}))
	t.Cleanup(srv.Close)

	return &harness{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		tokens: tokens,
		users:  users,
		chat:   chat,
	}
}

func (h *harness) session(t *testing.T, name string, role domain.Role) (*chatclient.ViewModel, *chatclient.Client, *domain.User) {
	t.Helper()
	u := &domain.User{Username: name, FullName: name, Role: role, HashedPassword: "x"}
	require.NoError(t, h.users.Create(context.Background(), u))
	token, err := h.tokens.CreateForUser(name)
	require.NoError(t, err)

	vm := chatclient.NewViewModel(chatclient.Viewer{ID: u.ID, Name: name, Role: role}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c, err := chatclient.Dial(ctx, h.url, token, vm)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		c.Close()
		<-done
	})
	return vm, c, u
}

func TestClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	staffVM, _, _ := h.session(t, "hoa", domain.RoleStaff)
	custVM, _, customer := h.session(t, "an", domain.RoleCustomer)

	room, err := h.chat.GetOrCreateActiveRoom(ctx, customer.ID)
	require.NoError(t, err)
	require.NoError(t, staffVM.Load(nil))
	require.NoError(t, custVM.Load([]chatclient.Room{{
		ID: room.ID, CustomerID: customer.ID, Status: string(room.Status),
		CreatedAt: room.CreatedAt, UpdatedAt: room.UpdatedAt,
		Messages: []json.RawMessage{},
	}}))
	convID := custVM.Selected()
	require.NotEmpty(t, convID)

	sent, err := custVM.SendMessage(convID, "Cho em hỏi thực đơn tiệc cưới")
	require.NoError(t, err)
	assert.Equal(t, chatclient.Pending, sent.State)

	require.Eventually(t, func() bool {
		msgs := custVM.Messages(convID)
		return len(msgs) == 1 && msgs[0].State == chatclient.Confirmed
	}, 3*time.Second, 20*time.Millisecond)

	// Staff sees the new conversation through the notification.
	require.Eventually(t, func() bool {
		c, ok := staffVM.Conversation(convID)
		return ok && c.UnreadCount == 1 && c.LastMessage != nil &&
			c.LastMessage.Body == "Cho em hỏi thực đơn tiệc cưới"
	}, 3*time.Second, 20*time.Millisecond)

	c, _ := custVM.Conversation(convID)
	assert.Zero(t, c.UnreadCount)
}

func TestClientRejectedSendFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, other := h.session(t, "binh", domain.RoleCustomer)
	foreign, err := h.chat.GetOrCreateActiveRoom(ctx, other.ID)
	require.NoError(t, err)

	vm, _, _ := h.session(t, "an", domain.RoleCustomer)
	require.NoError(t, vm.Load([]chatclient.Room{{ID: foreign.ID, Status: "ACTIVE", Messages: []json.RawMessage{}}}))

	_, err = vm.SendMessage(vm.Selected(), "xin chào")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := vm.Messages(vm.Selected())
		return len(msgs) == 1 && msgs[0].State == chatclient.Failed
	}, 3*time.Second, 20*time.Millisecond)
}
