package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// UnreadStats is one conversation with unread messages.
type UnreadStats struct {
	CounterpartID   string `json:"counterpart_id"`
	CounterpartName string `json:"counterpart_name"`
	Unread          int    `json:"unread"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Conversations  int           `json:"conversations"`
	TotalUnread    int           `json:"total_unread"`
	ThreadMessages int           `json:"thread_messages"`
	LastActivity   string        `json:"last_activity"`
	ChannelStatus  string        `json:"channel_status"`
	Unread         []UnreadStats `json:"unread"`
}

// Stats summarizes local chat state for dashboards.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	now := h.now()

	lastActivity := "no activity yet"
	var latest time.Time
	unread := make([]UnreadStats, 0)
	for _, p := range snap.Previews {
		if p.LatestMessageAt.After(latest) {
			latest = p.LatestMessageAt
		}
		if p.UnreadCount > 0 {
			unread = append(unread, UnreadStats{
				CounterpartID:   p.CounterpartID,
				CounterpartName: p.CounterpartName,
				Unread:          p.UnreadCount,
			})
		}
	}
	if !latest.IsZero() {
		lastActivity = formatTimeAgo(now.Sub(latest))
	}

	channelStatus := "not configured"
	if h.channel != nil {
		st := h.channel.State()
		switch {
		case st.Connected:
			channelStatus = "online since " + formatTimeAgo(now.Sub(st.Since))
		case !st.Since.IsZero():
			channelStatus = "offline since " + formatTimeAgo(now.Sub(st.Since))
		default:
			channelStatus = "offline"
		}
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Conversations:  len(snap.Previews),
		TotalUnread:    snap.TotalUnread,
		ThreadMessages: len(snap.Thread.Messages),
		LastActivity:   lastActivity,
		ChannelStatus:  channelStatus,
		Unread:         unread,
	})
}

// formatTimeAgo formats a duration as a human-readable "X ago" string.
func formatTimeAgo(diff time.Duration) string {
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
