package ws

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"caterchat/internal/domain"
	"caterchat/internal/metrics"
	"caterchat/internal/protocol"
)

// Authenticator resolves a bearer credential to an active user.
type Authenticator interface {
	UserFromToken(ctx context.Context, token string) (*domain.User, error)
}

// Broadcaster fans events out to live connections. Delivery is best effort:
// offline recipients miss the event and nothing is reported to the caller.
type Broadcaster interface {
	BroadcastToRoom(roomID int64, event string, payload any, exceptClientID string)
	BroadcastToUser(userID int64, event string, payload any)
	BroadcastToStaff(event string, payload any)
	BroadcastToAll(event string, payload any)
}

// Registry tracks authenticated connections by client id, by user, by room
// and by staff membership.
type Registry struct {
	auth Authenticator

	mu      sync.RWMutex
	clients map[string]*Client
	users   map[int64]map[string]*Client
	rooms   map[int64]map[string]*Client
	staff   map[string]*Client
	joined  map[string]map[int64]struct{}
}

var _ Broadcaster = (*Registry)(nil)

func NewRegistry(auth Authenticator) *Registry {
	return &Registry{
		auth:    auth,
		clients: make(map[string]*Client),
		users:   make(map[int64]map[string]*Client),
		rooms:   make(map[int64]map[string]*Client),
		staff:   make(map[string]*Client),
		joined:  make(map[string]map[int64]struct{}),
	}
}

// Verify checks a bearer credential. Any failure is domain.ErrUnauthorized.
func (r *Registry) Verify(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, domain.ErrUnauthorized
	}
	user, err := r.auth.UserFromToken(ctx, credential)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}

// Authenticate verifies credential and registers c under the user's
// personal channel. It reports whether c is the user's first connection.
func (r *Registry) Authenticate(ctx context.Context, c *Client, credential string) (*domain.User, bool, error) {
	user, err := r.Verify(ctx, credential)
	if err != nil {
		return nil, false, err
	}
	return user, r.Register(c, user), nil
}

// Register adds an already verified client. It reports whether c is the
// user's first live connection.
func (r *Registry) Register(c *Client, user *domain.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.user = user
	r.clients[c.ID] = c
	set := r.users[user.ID]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]*Client)
		r.users[user.ID] = set
	}
	set[c.ID] = c
	if user.Role.IsStaff() {
		r.staff[c.ID] = c
	}
	metrics.Connections.Inc()
	return first
}

// Unregister removes every entry for c and closes its send queue. It is
// safe to call more than once and reports whether c was the user's last
// live connection.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; !ok {
		return false
	}
	delete(r.clients, c.ID)
	delete(r.staff, c.ID)
	for roomID := range r.joined[c.ID] {
		removeMember(r.rooms, roomID, c.ID)
	}
	delete(r.joined, c.ID)

	last := false
	if c.user != nil {
		removeMember(r.users, c.user.ID, c.ID)
		_, still := r.users[c.user.ID]
		last = !still
	}
	c.close()
	metrics.Connections.Dec()
	return last
}

// Join subscribes a registered client to a room channel.
func (r *Registry) Join(c *Client, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	set := r.rooms[roomID]
	if set == nil {
		set = make(map[string]*Client)
		r.rooms[roomID] = set
	}
	set[c.ID] = c
	if r.joined[c.ID] == nil {
		r.joined[c.ID] = make(map[int64]struct{})
	}
	r.joined[c.ID][roomID] = struct{}{}
}

func (r *Registry) Leave(c *Client, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removeMember(r.rooms, roomID, c.ID)
	if joined := r.joined[c.ID]; joined != nil {
		delete(joined, roomID)
	}
}

func (r *Registry) BroadcastToRoom(roomID int64, event string, payload any, exceptClientID string) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.Broadcasts.WithLabelValues("room").Inc()
	for id, c := range r.rooms[roomID] {
		if id != exceptClientID {
			c.Send(frame)
		}
	}
}

func (r *Registry) BroadcastToUser(userID int64, event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.Broadcasts.WithLabelValues("user").Inc()
	for _, c := range r.users[userID] {
		c.Send(frame)
	}
}

func (r *Registry) BroadcastToStaff(event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.Broadcasts.WithLabelValues("staff").Inc()
	for _, c := range r.staff {
		c.Send(frame)
	}
}

func (r *Registry) BroadcastToAll(event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.Broadcasts.WithLabelValues("all").Inc()
	for _, c := range r.clients {
		c.Send(frame)
	}
}

// IsOnline reports whether the user has at least one registered connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// RoomSize returns the number of connections joined to a room.
func (r *Registry) RoomSize(roomID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func removeMember[K comparable](table map[K]map[string]*Client, key K, clientID string) {
	set, ok := table[key]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(table, key)
	}
}

func encode(event string, payload any) ([]byte, bool) {
	frame, err := protocol.Encode(event, "", payload)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("encode broadcast")
		return nil, false
	}
	return frame, true
}
