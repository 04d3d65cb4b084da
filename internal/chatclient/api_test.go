package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caterchat/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"token_type":   "bearer",
			"user":         map[string]any{"id": 1, "username": in["username"], "full_name": "Nguyễn An", "role": "customer"},
		})
	})
	mux.HandleFunc("GET /api/chat/room", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 5, "customerId": 1, "status": "ACTIVE",
			"createdAt": t0, "updatedAt": t0, "unreadCount": 0,
			"messages": []json.RawMessage{rawMsg(t, 1, 5, staffID, "chào anh", t0)},
		})
	}))
	mux.HandleFunc("GET /api/chat/rooms", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ACTIVE", r.URL.Query().Get("status"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 5, "customerId": 1, "status": "ACTIVE", "updatedAt": t0, "unreadCount": 2},
		})
	}))
	mux.HandleFunc("GET /api/chat/rooms/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "5" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
			return
		}
		writeJSON(w, http.StatusOK, []json.RawMessage{
			rawMsg(t, 1, 5, 1, "cho hỏi", t0),
			rawMsg(t, 2, 5, 1, "còn suất không", t0),
		})
	}))
	mux.HandleFunc("POST /api/chat/rooms/{id}/messages", authed(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, http.StatusCreated, rawMsg(t, 3, 5, 1, in["message"], t0))
	}))
	mux.HandleFunc("POST /api/chat/rooms/{id}/read", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPILoginAndBootstrapCustomer(t *testing.T) {
	srv := newFakeAPI(t)
	api := NewAPI(srv.URL + "/")
	ctx := context.Background()

	_, err := api.Login(ctx, "an", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)

	viewer, err := api.Login(ctx, "an", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", api.Token)
	assert.Equal(t, Viewer{ID: 1, Name: "Nguyễn An", Role: domain.RoleCustomer}, viewer)

	vm := NewViewModel(viewer, nil)
	require.NoError(t, api.Bootstrap(ctx, vm))
	assert.Equal(t, "5", vm.Selected())
	msgs := vm.Messages("5")
	require.Len(t, msgs, 1)
	assert.Equal(t, "chào anh", msgs[0].Body)

	m, err := api.PostMessage(ctx, 5, "cảm ơn")
	require.NoError(t, err)
	assert.Equal(t, "cảm ơn", m.Body)
	assert.Equal(t, int64(3), m.ID)

	require.NoError(t, api.MarkRead(ctx, 5))
}

func TestAPIBootstrapStaffAndOpen(t *testing.T) {
	srv := newFakeAPI(t)
	api := NewAPI(srv.URL)
	api.Token = "tok"
	ctx := context.Background()

	vm := NewViewModel(Viewer{ID: staffID, Role: domain.RoleStaff}, nil)
	require.NoError(t, api.Bootstrap(ctx, vm))
	c, ok := vm.Conversation("5")
	require.True(t, ok)
	assert.False(t, c.Loaded)
	assert.Equal(t, 2, c.UnreadCount)

	require.NoError(t, api.Open(ctx, vm, "5"))
	c, _ = vm.Conversation("5")
	assert.True(t, c.Loaded)
	assert.Equal(t, 2, c.UnreadCount)
	assert.Len(t, vm.Messages("5"), 2)

	_, err := api.Messages(ctx, 6)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestAPIUnauthorized(t *testing.T) {
	srv := newFakeAPI(t)
	api := NewAPI(srv.URL)

	_, err := api.MyRoom(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
