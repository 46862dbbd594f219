package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/buddychat/internal/chat"
	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/realtime"
)

const maxMessageLength = 4096

// PreviewResponse is one conversation in the preview list.
type PreviewResponse struct {
	Preview models.Preview `json:"preview"`
	Time    string         `json:"time"` // display label, e.g. "Yesterday"
}

// PreviewListResponse represents the preview list response.
type PreviewListResponse struct {
	Previews    []PreviewResponse `json:"previews"`
	TotalUnread int               `json:"totalUnread"`
}

// ContactListResponse represents users without a conversation yet.
type ContactListResponse struct {
	Users []models.User `json:"users"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessageResponse represents the send message response.
type SendMessageResponse struct {
	Message models.Message `json:"message"`
	Warning string         `json:"warning,omitempty"`
}

// ListPreviews returns the conversation list, most recent first.
func (h *Handler) ListPreviews(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	now := h.now()

	previews := make([]PreviewResponse, len(snap.Previews))
	for i, p := range snap.Previews {
		previews[i] = PreviewResponse{
			Preview: p,
			Time:    chat.FormatChatTime(p.LatestMessageAt, now),
		}
	}

	h.JSON(w, http.StatusOK, PreviewListResponse{
		Previews:    previews,
		TotalUnread: snap.TotalUnread,
	})
}

// ListContacts returns users with no conversation yet.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	users := h.engine.NewContacts()
	if users == nil {
		users = []models.User{}
	}
	h.JSON(w, http.StatusOK, ContactListResponse{Users: users})
}

// GetThread returns the open thread.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.engine.Snapshot().Thread)
}

// OpenThread opens the thread with the counterpart in the URL and waits for
// its first page.
func (h *Handler) OpenThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "counterpart id is required")
		return
	}

	if err := h.engine.OpenThread(r.Context(), id); err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, h.engine.Snapshot().Thread)
}

// CloseThread clears the active thread.
func (h *Handler) CloseThread(w http.ResponseWriter, r *http.Request) {
	h.engine.CloseThread()
	w.WriteHeader(http.StatusNoContent)
}

// LoadMore fetches the next older page of the open thread.
func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	err := h.engine.LoadNextPage(r.Context())
	switch {
	case err == nil, errors.Is(err, chat.ErrExhausted):
		h.JSON(w, http.StatusOK, h.engine.Snapshot().Thread)
	case errors.Is(err, chat.ErrNoThread):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrPageInFlight):
		h.Error(w, http.StatusConflict, err.Error())
	default:
		h.Error(w, http.StatusBadGateway, err.Error())
	}
}

// SendMessage sends a message to the counterpart in the URL.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		h.Error(w, http.StatusUnprocessableEntity, "message too long (max 4096 characters)")
		return
	}

	msg, err := h.engine.Send(id, req.Message)
	switch {
	case err == nil:
		h.JSON(w, http.StatusCreated, SendMessageResponse{Message: msg})
	case errors.Is(err, realtime.ErrNotConnected):
		// Kept locally, flagged failed.
		h.JSON(w, http.StatusAccepted, SendMessageResponse{Message: msg, Warning: err.Error()})
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoCounterpart), errors.Is(err, chat.ErrSelfMessage):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNoLocalUser):
		h.Error(w, http.StatusUnauthorized, err.Error())
	default:
		h.Error(w, http.StatusBadGateway, err.Error())
	}
}
