package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caterchat/internal/domain"
	"caterchat/internal/protocol"
)

type tokenTable map[string]*domain.User

func (t tokenTable) UserFromToken(_ context.Context, token string) (*domain.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, domain.ErrUnauthorized
}

var (
	customer      = &domain.User{ID: 1, Username: "mai", Role: domain.RoleCustomer, IsActive: true}
	otherCustomer = &domain.User{ID: 2, Username: "long", Role: domain.RoleCustomer, IsActive: true}
	staffUser     = &domain.User{ID: 10, Username: "admin", Role: domain.RoleAdmin, IsActive: true}
)

func testRegistry() *Registry {
	return NewRegistry(tokenTable{"t-mai": customer, "t-long": otherCustomer, "t-admin": staffUser})
}

func connect(t *testing.T, r *Registry, user *domain.User) *Client {
	t.Helper()
	c := NewClient(nil, 8)
	r.Register(c, user)
	return c
}

func nextFrame(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		env, err := protocol.Decode(b)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return protocol.Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected frame %s", b)
	default:
	}
}

func decodeData(t *testing.T, env protocol.Envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestAuthenticate(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	c := NewClient(nil, 8)
	user, first, err := r.Authenticate(ctx, c, "t-mai")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, customer.ID, user.ID)
	assert.Equal(t, customer, c.User())
	assert.True(t, r.IsOnline(customer.ID))

	second := NewClient(nil, 8)
	_, first, err = r.Authenticate(ctx, second, "t-mai")
	require.NoError(t, err)
	assert.False(t, first)

	bad := NewClient(nil, 8)
	_, _, err = r.Authenticate(ctx, bad, "forged")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = r.Authenticate(ctx, bad, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, bad.User())
	assert.Equal(t, 2, r.ConnectionCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := testRegistry()
	a := connect(t, r, customer)
	b := connect(t, r, customer)
	r.Join(a, 5)
	r.Join(b, 5)

	assert.False(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	assert.Equal(t, 1, r.RoomSize(5))

	assert.True(t, r.Unregister(b))
	assert.False(t, r.IsOnline(customer.ID))
	assert.Zero(t, r.RoomSize(5))
	assert.Zero(t, r.ConnectionCount())

	_, ok := <-a.send
	assert.False(t, ok)
	assert.False(t, a.Send([]byte("late")))
}

func TestBroadcastTargets(t *testing.T) {
	r := testRegistry()
	mai := connect(t, r, customer)
	long := connect(t, r, otherCustomer)
	admin := connect(t, r, staffUser)

	r.Join(mai, 5)
	r.Join(admin, 5)

	r.BroadcastToRoom(5, protocol.EventNewMessage, map[string]int{"id": 1}, "")
	assert.Equal(t, protocol.EventNewMessage, nextFrame(t, mai).Event)
	assert.Equal(t, protocol.EventNewMessage, nextFrame(t, admin).Event)
	assertNoFrame(t, long)

	r.BroadcastToRoom(5, protocol.EventUserTyping, nil, mai.ID)
	assertNoFrame(t, mai)
	assert.Equal(t, protocol.EventUserTyping, nextFrame(t, admin).Event)

	r.BroadcastToUser(otherCustomer.ID, protocol.EventNotification, nil)
	assert.Equal(t, protocol.EventNotification, nextFrame(t, long).Event)
	assertNoFrame(t, mai)

	r.BroadcastToStaff(protocol.EventUserOnline, nil)
	assert.Equal(t, protocol.EventUserOnline, nextFrame(t, admin).Event)
	assertNoFrame(t, mai)
	assertNoFrame(t, long)

	r.BroadcastToAll(protocol.EventNotification, nil)
	for _, c := range []*Client{mai, long, admin} {
		assert.Equal(t, protocol.EventNotification, nextFrame(t, c).Event)
	}

	r.Leave(mai, 5)
	r.BroadcastToRoom(5, protocol.EventNewMessage, nil, "")
	assertNoFrame(t, mai)
	nextFrame(t, admin)

	// Offline targets are silently skipped.
	r.BroadcastToRoom(99, protocol.EventNewMessage, nil, "")
	r.BroadcastToUser(404, protocol.EventNewMessage, nil)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	r := testRegistry()
	slow := NewClient(nil, 2)
	r.Register(slow, customer)
	r.Join(slow, 5)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.BroadcastToRoom(5, protocol.EventNewMessage, i, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}
	assert.Len(t, slow.send, 2)
}

func TestJoinRequiresRegistration(t *testing.T) {
	r := testRegistry()
	c := NewClient(nil, 8)
	r.Join(c, 5)
	assert.Zero(t, r.RoomSize(5))
}
