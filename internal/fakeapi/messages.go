package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

const (
	conversationsPerPage = 20
	messagesPerPage      = 50
	maxMessageLength     = 1000
)

type conversationJSON struct {
	User        userJSON     `json:"user"`
	LastMessage *messageJSON `json:"last_message"`
	UnreadCount int          `json:"unread_count"`
}

// conversations handles GET /api/messages.
func (s *Server) conversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, pg := paginate(s.world.Conversations(userIDFrom(ctx)), queryInt(r, "page", 1), conversationsPerPage)

	out := make([]conversationJSON, 0, len(items))
	for _, c := range items {
		last := toMessageJSON(c.LastMessage)
		out = append(out, conversationJSON{User: toUserJSON(c.User, false, s.online(c.User.ID)), LastMessage: &last, UnreadCount: c.Unread})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"conversations": out,
		"current_page":  pg.CurrentPage,
		"last_page":     pg.LastPage,
		"per_page":      pg.PerPage,
		"total":         pg.Total,
	})
}

// thread handles GET /api/messages/{id}. Page 1 holds the newest messages,
// each page in newest-first order.
func (s *Server) thread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msgs := s.world.Thread(userIDFrom(ctx), pathID(r))
	slices.Reverse(msgs)
	items, pg := paginate(msgs, queryInt(r, "page", 1), messagesPerPage)

	out := make([]messageJSON, 0, len(items))
	for _, m := range items {
		out = append(out, toMessageJSON(m))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"messages":     out,
		"current_page": pg.CurrentPage,
		"last_page":    pg.LastPage,
		"per_page":     pg.PerPage,
		"total":        pg.Total,
	})
}

type sendRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Message  string `json:"message"`
}

// send handles POST /api/messages/send and pushes the message to the
// receiver's sockets.
func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	body := strings.TrimSpace(req.Message)
	if body == "" || len(body) > maxMessageLength {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The message field is required.",
			"errors":  map[string][]string{"message": {"The message must be between 1 and 1000 characters."}},
		})
		return
	}

	msg, err := s.world.Send(userIDFrom(ctx), req.ToUserID, body)
	switch {
	case errors.Is(err, ErrNotMatched):
		respondError(ctx, w, http.StatusForbidden, "You can only message users you have matched with")
		return
	case errors.Is(err, ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logger.Error("send failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to send message")
		return
	}

	payload := toMessageJSON(msg)
	s.hub.sendToUser(msg.ToID, event{Type: "message", Data: payload})
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"message": "Message sent", "data": payload})
}

// markRead handles POST /api/messages/{id}/read.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.world.MarkRead(userIDFrom(ctx), pathID(r))
	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Messages marked as read"})
}

// deleteMessage handles DELETE /api/messages/{id}.
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch err := s.world.DeleteMessage(userIDFrom(ctx), pathID(r)); {
	case errors.Is(err, ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "Message not found")
	case errors.Is(err, ErrForbidden):
		respondError(ctx, w, http.StatusForbidden, "You can only delete your own messages")
	default:
		respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Message deleted"})
	}
}

// unreadCount handles GET /api/messages/unread-count.
func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(ctx, w, http.StatusOK, map[string]int{"unread_count": s.world.UnreadCount(userIDFrom(ctx))})
}
