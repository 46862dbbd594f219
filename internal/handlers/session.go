package handlers

import (
	"net/http"

	"github.com/eldtechnologies/buddychat/internal/realtime"
	"github.com/eldtechnologies/buddychat/internal/session"
)

// SessionResponse represents the session endpoint response.
type SessionResponse struct {
	session.State
	Claims  *session.Claims `json:"claims,omitempty"`
	Channel *realtime.State `json:"channel,omitempty"`
}

// Session returns the signed-in identity and channel connectivity.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{State: h.session.State()}
	if resp.LoggedIn {
		// Opaque tokens have no claims to show.
		if claims, err := h.session.Claims(r.Context()); err == nil {
			resp.Claims = claims
		}
	}
	if h.channel != nil {
		st := h.channel.State()
		resp.Channel = &st
	}
	h.JSON(w, http.StatusOK, resp)
}
