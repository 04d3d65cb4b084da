package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caterchat/internal/domain"
)

// Room is a chat room as returned by the REST API.
type Room struct {
	ID          int64             `json:"id"`
	CustomerID  int64             `json:"customerId"`
	Customer    *Participant      `json:"customer,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	LastMessage json.RawMessage   `json:"lastMessage,omitempty"`
	UnreadCount int               `json:"unreadCount"`
	Messages    []json.RawMessage `json:"messages,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API is a small client for the chat REST endpoints.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login stores the returned token on a and returns the signed-in viewer.
func (a *API) Login(ctx context.Context, username, password string) (Viewer, error) {
	var resp struct {
		AccessToken string  `json:"access_token"`
		User        apiUser `json:"user"`
	}
	err := a.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return Viewer{}, err
	}
	a.Token = resp.AccessToken
	return resp.User.viewer(), nil
}

func (a *API) Me(ctx context.Context) (Viewer, error) {
	var u apiUser
	if err := a.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return Viewer{}, err
	}
	return u.viewer(), nil
}

// MyRoom fetches, or creates, the customer's active room with its history.
func (a *API) MyRoom(ctx context.Context) (Room, error) {
	var room Room
	err := a.do(ctx, http.MethodGet, "/api/chat/room", nil, &room)
	return room, err
}

// Rooms lists rooms for staff. An empty status lists every room.
func (a *API) Rooms(ctx context.Context, status string) ([]Room, error) {
	path := "/api/chat/rooms"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var rooms []Room
	err := a.do(ctx, http.MethodGet, path, nil, &rooms)
	return rooms, err
}

func (a *API) Messages(ctx context.Context, roomID int64) ([]Message, error) {
	var raws []json.RawMessage
	if err := a.do(ctx, http.MethodGet, roomPath(roomID, "messages"), nil, &raws); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		m, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// PostMessage sends through REST instead of the socket.
func (a *API) PostMessage(ctx context.Context, roomID int64, body string) (Message, error) {
	var raw json.RawMessage
	if err := a.do(ctx, http.MethodPost, roomPath(roomID, "messages"), map[string]string{"message": body}, &raw); err != nil {
		return Message{}, err
	}
	return Normalize(raw)
}

func (a *API) MarkRead(ctx context.Context, roomID int64) error {
	return a.do(ctx, http.MethodPost, roomPath(roomID, "read"), nil, nil)
}

// Bootstrap loads the viewer's conversations into vm: the customer's own
// room with its history, or the active rooms for staff.
func (a *API) Bootstrap(ctx context.Context, vm *ViewModel) error {
	if vm.Viewer().Role.IsStaff() {
		rooms, err := a.Rooms(ctx, string(domain.RoomActive))
		if err != nil {
			return err
		}
		return vm.Load(rooms)
	}
	room, err := a.MyRoom(ctx)
	if err != nil {
		return err
	}
	return vm.Load([]Room{room})
}

// Open selects a conversation and loads its history when needed.
func (a *API) Open(ctx context.Context, vm *ViewModel, conversationID string) error {
	loaded, err := vm.Select(conversationID)
	if err != nil || loaded {
		return err
	}
	roomID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return ErrUnknownConversation
	}
	msgs, err := a.Messages(ctx, roomID)
	if err != nil {
		return err
	}
	return vm.LoadMessages(conversationID, msgs)
}

// ── helpers ──────────────────────────────────────────────────────────────────

type apiUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (u apiUser) viewer() Viewer {
	name := u.FullName
	if name == "" {
		name = u.Username
	}
	return Viewer{ID: u.ID, Name: name, Role: domain.Role(u.Role)}
}

func roomPath(roomID int64, tail string) string {
	return "/api/chat/rooms/" + strconv.FormatInt(roomID, 10) + "/" + tail
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
