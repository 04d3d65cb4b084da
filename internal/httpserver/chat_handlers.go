package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"caterchat/internal/domain"
	"caterchat/internal/service"
	"caterchat/internal/ws"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

func roomIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid room id", domain.ErrInvalidInput)
	}
	return id, nil
}

// @Summary      Get my chat room
// @Description  Returns the customer's active room with its history, creating it on first use
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  service.RoomWithMessages
// @Failure      403  {object}  map[string]string
// @Router       /chat/room [get]
func handleMyRoom(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user.Role.IsStaff() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff do not own chat rooms"})
			return
		}
		room, err := chat.GetOrCreateActiveRoom(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

// @Summary      List chat rooms
// @Description  Staff view of rooms, newest activity first
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "ACTIVE or CLOSED"
// @Success      200  {array}   service.RoomResponse
// @Failure      400  {object}  map[string]string
// @Router       /chat/rooms [get]
func handleListRooms(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.RoomStatus(r.URL.Query().Get("status"))
		rooms, err := chat.ListRoomsForStaff(r.Context(), status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

// @Summary      List messages
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        roomID path int true "Room ID"
// @Success      200  {array}   service.MessageResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chat/rooms/{roomID}/messages [get]
func handleListMessages(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := roomIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := chat.AuthorizeRoom(r.Context(), CurrentUser(r), roomID); err != nil {
			writeError(w, r, err)
			return
		}
		msgs, err := chat.ListMessages(r.Context(), roomID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// @Summary      Send a message
// @Description  Persists the message and broadcasts it like a socket send
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        roomID path int true "Room ID"
// @Param        input body sendMessageRequest true "Message"
// @Success      201  {object}  service.MessageResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /chat/rooms/{roomID}/messages [post]
func handleCreateMessage(co *ws.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := roomIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		msg, err := co.SendMessage(r.Context(), CurrentUser(r), roomID, req.Message)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// @Summary      Mark room read
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        roomID path int true "Room ID"
// @Success      200  {object}  map[string]int64
// @Router       /chat/rooms/{roomID}/read [post]
func handleMarkRead(co *ws.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := roomIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := co.MarkRead(r.Context(), CurrentUser(r), roomID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
	}
}

// @Summary      Close a room
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        roomID path int true "Room ID"
// @Success      200  {object}  service.RoomResponse
// @Failure      404  {object}  map[string]string
// @Router       /chat/rooms/{roomID}/close [post]
func handleCloseRoom(chat *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := roomIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		room, err := chat.Close(r.Context(), roomID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}
