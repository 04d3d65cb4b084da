// Package chatclient is the client side of the support chat: a view-model
// that reconciles REST snapshots, socket pushes and optimistic sends, plus
// the socket and REST transports that feed it.
package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caterchat/internal/domain"
)

// TempIDPrefix marks ids generated locally for optimistic messages.
const TempIDPrefix = "tmp-"

// DefaultPendingTimeout is how long an optimistic message may wait for its
// echo before ExpirePending marks it failed.
const DefaultPendingTimeout = 30 * time.Second

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrEmptyMessage        = errors.New("message cannot be empty")
)

// State is the provenance of a message held by the view-model.
type State int

const (
	// Confirmed messages carry a store-assigned ID.
	Confirmed State = iota
	// Pending messages were sent optimistically and await their echo.
	Pending
	// Failed messages were pending for longer than the timeout, or their
	// send was rejected. A late echo still confirms them.
	Failed
)

func (s State) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Message struct {
	ID             int64
	TempID         string
	State          State
	ConversationID string
	RoomID         int64
	FromUserID     int64
	SenderName     string
	SenderRole     string
	Body           string
	IsRead         bool
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// Optimistic reports whether m has no store id yet.
func (m Message) Optimistic() bool {
	return m.State != Confirmed
}

type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Conversation struct {
	ID           string
	RoomID       int64
	Participants []Participant
	LastMessage  *Message
	UnreadCount  int
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Loaded is false until the full history has been loaded.
	Loaded bool
}

// Viewer is the signed-in user of a session.
type Viewer struct {
	ID   int64
	Name string
	Role domain.Role
}

// Emitter delivers the view-model's requests to the server.
type Emitter interface {
	SendMessage(roomID int64, body string) error
	MarkRead(roomID int64) error
	JoinRoom(roomID int64) error
}

// ViewModel holds the conversations and messages of one session. All
// methods are safe for concurrent use.
type ViewModel struct {
	PendingTimeout time.Duration

	mu       sync.Mutex
	viewer   Viewer
	emit     Emitter
	now      func() time.Time
	convs    map[string]*Conversation
	messages map[string][]*Message
	seen     map[string]map[int64]struct{}
	// early holds confirmed messages that arrived before the history was
	// loaded; loadMessagesLocked merges them into the snapshot.
	early    map[string][]Message
	typing   map[string]map[int64]struct{}
	selected string
}

func NewViewModel(viewer Viewer, emit Emitter) *ViewModel {
	vm := &ViewModel{
		PendingTimeout: DefaultPendingTimeout,
		viewer:         viewer,
		emit:           emit,
		now:            time.Now,
	}
	vm.resetLocked()
	return vm
}

// Attach sets the emitter after construction.
func (vm *ViewModel) Attach(emit Emitter) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.emit = emit
}

func (vm *ViewModel) Viewer() Viewer {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.viewer
}

// Reset discards everything, as on logout.
func (vm *ViewModel) Reset() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.resetLocked()
}

func (vm *ViewModel) resetLocked() {
	vm.convs = make(map[string]*Conversation)
	vm.messages = make(map[string][]*Message)
	vm.seen = make(map[string]map[int64]struct{})
	vm.early = make(map[string][]Message)
	vm.typing = make(map[string]map[int64]struct{})
	vm.selected = ""
}

// Load rebuilds the conversation list from rooms. Rooms that include their
// history are loaded as well. A non-staff viewer's conversation is selected
// automatically; staff must pick one.
func (vm *ViewModel) Load(rooms []Room) error {
	vm.mu.Lock()
	vm.resetLocked()

	for _, r := range rooms {
		c := &Conversation{
			ID:          conversationID(r.ID),
			RoomID:      r.ID,
			UnreadCount: r.UnreadCount,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		}
		c.Participants = vm.participants(r)
		if len(r.LastMessage) > 0 && string(r.LastMessage) != "null" {
			if last, err := Normalize(r.LastMessage); err == nil {
				c.LastMessage = &last
			}
		}
		vm.convs[c.ID] = c

		if r.Messages != nil {
			msgs := make([]Message, 0, len(r.Messages))
			for _, raw := range r.Messages {
				m, err := Normalize(raw)
				if err != nil {
					vm.mu.Unlock()
					return err
				}
				msgs = append(msgs, m)
			}
			vm.loadMessagesLocked(c.ID, msgs)
		}
	}

	var join int64
	if !vm.viewer.Role.IsStaff() && len(rooms) > 0 {
		c := vm.convs[conversationID(rooms[0].ID)]
		vm.selected = c.ID
		join = c.RoomID
	}
	emit := vm.emit
	vm.mu.Unlock()

	if join != 0 && emit != nil {
		return emit.JoinRoom(join)
	}
	return nil
}

func (vm *ViewModel) participants(r Room) []Participant {
	support := Participant{Name: "support", Role: string(domain.RoleStaff)}
	if r.Customer != nil {
		return []Participant{*r.Customer, support}
	}
	return []Participant{{ID: r.CustomerID, Role: string(domain.RoleCustomer)}, support}
}

// LoadMessages replaces the history of a conversation with a REST snapshot.
// Optimistic messages the snapshot does not contain yet are kept.
func (vm *ViewModel) LoadMessages(conversationID string, msgs []Message) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.convs[conversationID]; !ok {
		return ErrUnknownConversation
	}
	vm.loadMessagesLocked(conversationID, msgs)
	return nil
}

func (vm *ViewModel) loadMessagesLocked(id string, msgs []Message) {
	c := vm.convs[id]
	merged := append(append([]Message(nil), msgs...), vm.early[id]...)
	delete(vm.early, id)

	seen := make(map[int64]struct{}, len(merged))
	list := make([]*Message, 0, len(merged))
	for i := range merged {
		m := merged[i]
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.ConversationID = id
		m.RoomID = c.RoomID
		m.State = Confirmed
		m.TempID = ""
		list = append(list, &m)
	}
	sort.SliceStable(list, func(i, j int) bool { return before(list[i], list[j]) })

	// Keep optimistic messages whose echo is not part of the snapshot.
	claimed := make(map[*Message]bool)
	for _, old := range vm.messages[id] {
		if !old.Optimistic() {
			continue
		}
		matched := false
		for _, m := range list {
			if !claimed[m] && m.FromUserID == old.FromUserID && m.Body == old.Body {
				claimed[m] = true
				matched = true
				break
			}
		}
		if !matched {
			list = append(list, old)
		}
	}

	vm.messages[id] = list
	vm.seen[id] = seen
	c.Loaded = true
	c.UnreadCount = vm.countUnreadLocked(id)
	if n := len(list); n > 0 {
		last := *list[n-1]
		c.LastMessage = &last
	}
}

// Select makes id the open conversation and joins its room channel. It
// reports whether the history is already loaded.
func (vm *ViewModel) Select(id string) (bool, error) {
	vm.mu.Lock()
	c, ok := vm.convs[id]
	if !ok {
		vm.mu.Unlock()
		return false, ErrUnknownConversation
	}
	vm.selected = id
	loaded, roomID, emit := c.Loaded, c.RoomID, vm.emit
	vm.mu.Unlock()

	if emit != nil {
		if err := emit.JoinRoom(roomID); err != nil {
			return loaded, err
		}
	}
	return loaded, nil
}

func (vm *ViewModel) Selected() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.selected
}

// SendMessage shows body immediately as a pending message and emits it.
// Sending the same body again while an identical message is pending
// returns that message instead of creating a second one; if the identical
// message had failed, it is retried.
func (vm *ViewModel) SendMessage(conversationID, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, ErrEmptyMessage
	}

	vm.mu.Lock()
	c, ok := vm.convs[conversationID]
	if !ok {
		vm.mu.Unlock()
		return Message{}, ErrUnknownConversation
	}

	var m *Message
	for _, existing := range vm.messages[conversationID] {
		if existing.Optimistic() && existing.FromUserID == vm.viewer.ID && existing.Body == body {
			m = existing
			break
		}
	}
	if m != nil && m.State == Pending {
		out := *m
		vm.mu.Unlock()
		return out, nil
	}

	now := vm.now()
	if m == nil {
		m = &Message{
			TempID:         TempIDPrefix + uuid.NewString(),
			ConversationID: conversationID,
			RoomID:         c.RoomID,
			FromUserID:     vm.viewer.ID,
			SenderName:     vm.viewer.Name,
			SenderRole:     string(vm.viewer.Role),
			Body:           body,
		}
		vm.messages[conversationID] = append(vm.messages[conversationID], m)
	}
	m.State = Pending
	m.IsRead = false
	m.CreatedAt = now
	last := *m
	c.LastMessage = &last
	c.UpdatedAt = now
	out, roomID, emit := *m, c.RoomID, vm.emit
	vm.mu.Unlock()

	if emit == nil {
		return out, nil
	}
	if err := emit.SendMessage(roomID, body); err != nil {
		vm.FailPending(conversationID, body)
		out.State = Failed
		return out, err
	}
	return out, nil
}

// FailPending marks the viewer's pending message with body as failed.
func (vm *ViewModel) FailPending(conversationID, body string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, m := range vm.messages[conversationID] {
		if m.State == Pending && m.FromUserID == vm.viewer.ID && m.Body == body {
			m.State = Failed
			return true
		}
	}
	return false
}

// ExpirePending marks every pending message older than PendingTimeout as
// failed and returns them.
func (vm *ViewModel) ExpirePending() []Message {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	cutoff := vm.now().Add(-vm.PendingTimeout)
	var expired []Message
	for _, list := range vm.messages {
		for _, m := range list {
			if m.State == Pending && m.CreatedAt.Before(cutoff) {
				m.State = Failed
				expired = append(expired, *m)
			}
		}
	}
	return expired
}

// ApplyNewMessage reconciles a room-scoped new_message payload.
func (vm *ViewModel) ApplyNewMessage(raw json.RawMessage) (bool, error) {
	m, err := Normalize(raw)
	if err != nil {
		return false, err
	}
	return vm.Apply(m), nil
}

// ApplyNotification reconciles a new_message_notification payload.
func (vm *ViewModel) ApplyNotification(raw json.RawMessage) (bool, error) {
	return vm.ApplyNewMessage(raw)
}

// Apply reconciles one confirmed message and reports whether it changed
// the message list or preview. A message id already held is discarded.
// The viewer's own echo replaces its optimistic twin in place.
func (vm *ViewModel) Apply(m Message) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	m.State = Confirmed
	m.TempID = ""
	m.ConversationID = conversationID(m.RoomID)
	c := vm.convs[m.ConversationID]
	if c == nil {
		c = &Conversation{
			ID:           m.ConversationID,
			RoomID:       m.RoomID,
			Status:       string(domain.RoomActive),
			CreatedAt:    m.CreatedAt,
			Participants: []Participant{{Name: "support", Role: string(domain.RoleStaff)}},
		}
		vm.convs[c.ID] = c
	}

	seen := vm.seen[c.ID]
	if seen == nil {
		seen = make(map[int64]struct{})
		vm.seen[c.ID] = seen
	}
	if _, dup := seen[m.ID]; dup {
		return false
	}
	seen[m.ID] = struct{}{}

	own := m.FromUserID == vm.viewer.ID
	replaced := false
	if own {
		for _, held := range vm.messages[c.ID] {
			if held.Optimistic() && held.FromUserID == m.FromUserID && held.Body == m.Body {
				*held = m
				replaced = true
				break
			}
		}
	}
	switch {
	case !c.Loaded:
		vm.early[c.ID] = append(vm.early[c.ID], m)
	case !replaced:
		held := m
		vm.messages[c.ID] = append(vm.messages[c.ID], &held)
	}

	if c.LastMessage == nil || c.LastMessage.Optimistic() || !before(&m, c.LastMessage) {
		last := m
		c.LastMessage = &last
	}
	if m.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = m.CreatedAt
	}
	if !own && !m.IsRead {
		c.UnreadCount++
	}
	if typing := vm.typing[c.ID]; typing != nil {
		delete(typing, m.FromUserID)
	}
	return true
}

// ApplyMessagesRead handles messages_read. When the viewer is the reader
// (another tab) the conversation's unread count drops to zero; otherwise
// the viewer's own messages are now read by the other side.
func (vm *ViewModel) ApplyMessagesRead(raw json.RawMessage) error {
	var p struct {
		RoomID int64 `json:"roomId"`
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	c := vm.convs[conversationID(p.RoomID)]
	if c == nil {
		return nil
	}
	if p.UserID == vm.viewer.ID {
		vm.markReadLocked(c)
		return nil
	}
	now := vm.now()
	for _, m := range vm.messages[c.ID] {
		if m.FromUserID != p.UserID && !m.Optimistic() && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
		}
	}
	for i := range vm.early[c.ID] {
		if m := &vm.early[c.ID][i]; m.FromUserID != p.UserID && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
		}
	}
	if c.Loaded {
		c.UnreadCount = vm.countUnreadLocked(c.ID)
	}
	return nil
}

// countUnreadLocked counts held messages from others that are still unread.
func (vm *ViewModel) countUnreadLocked(id string) int {
	n := 0
	for _, m := range vm.messages[id] {
		if m.FromUserID != vm.viewer.ID && !m.Optimistic() && !m.IsRead {
			n++
		}
	}
	return n
}

// ApplyTyping handles user_typing.
func (vm *ViewModel) ApplyTyping(raw json.RawMessage) error {
	var p struct {
		RoomID   int64 `json:"roomId"`
		UserID   int64 `json:"userId"`
		IsTyping bool  `json:"isTyping"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if p.UserID == vm.viewer.ID {
		return nil
	}
	id := conversationID(p.RoomID)
	set := vm.typing[id]
	if p.IsTyping {
		if set == nil {
			set = make(map[int64]struct{})
			vm.typing[id] = set
		}
		set[p.UserID] = struct{}{}
	} else if set != nil {
		delete(set, p.UserID)
	}
	return nil
}

// Typing returns the users currently typing in a conversation.
func (vm *ViewModel) Typing(conversationID string) []int64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	res := make([]int64, 0, len(vm.typing[conversationID]))
	for id := range vm.typing[conversationID] {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// MarkRead clears the conversation's unread count and tells the server.
func (vm *ViewModel) MarkRead(conversationID string) error {
	vm.mu.Lock()
	c, ok := vm.convs[conversationID]
	if !ok {
		vm.mu.Unlock()
		return ErrUnknownConversation
	}
	vm.markReadLocked(c)
	roomID, emit := c.RoomID, vm.emit
	vm.mu.Unlock()

	if emit != nil {
		return emit.MarkRead(roomID)
	}
	return nil
}

func (vm *ViewModel) markReadLocked(c *Conversation) {
	c.UnreadCount = 0
	now := vm.now()
	for _, m := range vm.messages[c.ID] {
		if m.FromUserID != vm.viewer.ID && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
		}
	}
}

// Conversations returns copies ordered by latest activity.
func (vm *ViewModel) Conversations() []Conversation {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	res := make([]Conversation, 0, len(vm.convs))
	for _, c := range vm.convs {
		cp := *c
		if c.LastMessage != nil {
			last := *c.LastMessage
			cp.LastMessage = &last
		}
		cp.Participants = append([]Participant(nil), c.Participants...)
		res = append(res, cp)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].UpdatedAt.After(res[j].UpdatedAt)
		}
		return res[i].RoomID > res[j].RoomID
	})
	return res
}

// Conversation returns a copy of one conversation.
func (vm *ViewModel) Conversation(id string) (Conversation, bool) {
	for _, c := range vm.Conversations() {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// Messages returns copies of a conversation's messages in display order.
func (vm *ViewModel) Messages(conversationID string) []Message {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	list := vm.messages[conversationID]
	res := make([]Message, len(list))
	for i, m := range list {
		res[i] = *m
	}
	return res
}

// before orders confirmed messages by (CreatedAt, ID).
func before(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
