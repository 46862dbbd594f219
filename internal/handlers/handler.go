package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eldtechnologies/buddychat/internal/chat"
	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/realtime"
	"github.com/eldtechnologies/buddychat/internal/session"
	"github.com/eldtechnologies/buddychat/internal/store"
)

// Engine is the chat state the handlers read and drive.
type Engine interface {
	Snapshot() chat.Snapshot
	NewContacts() []models.User
	OpenThread(ctx context.Context, counterpartID string) error
	CloseThread()
	LoadNextPage(ctx context.Context) error
	Send(counterpartID, body string) (models.Message, error)
}

// Session exposes the signed-in identity.
type Session interface {
	State() session.State
	Claims(ctx context.Context) (*session.Claims, error)
}

// Channel exposes real-time connectivity.
type Channel interface {
	State() realtime.State
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	engine      Engine
	session     Session
	channel     Channel
	credentials store.CredentialStore
	now         func() time.Time
}

// NewHandler creates a new Handler. channel and credentials may be nil.
func NewHandler(engine Engine, sess Session, channel Channel, credentials store.CredentialStore) *Handler {
	return &Handler{
		engine:      engine,
		session:     sess,
		channel:     channel,
		credentials: credentials,
		now:         time.Now,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
