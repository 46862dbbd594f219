package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Preview summarizes one conversation for list display.
type Preview struct {
	CounterpartID        string    `json:"userId"`
	CounterpartName      string    `json:"name"`
	CounterpartAvatarURL string    `json:"imageUrl,omitempty"`
	LatestMessageText    string    `json:"latestMessage"`
	LatestMessageAt      time.Time `json:"createdAt"`
	UnreadCount          int       `json:"unreadCount"`
}

type previewWire struct {
	CounterpartID        string          `json:"userId"`
	CounterpartName      string          `json:"name"`
	CounterpartAvatarURL string          `json:"imageUrl,omitempty"`
	LatestMessageText    string          `json:"latestMessage"`
	LatestMessageAt      json.RawMessage `json:"createdAt,omitempty"`
	UnreadCount          int             `json:"unreadCount"`
}

// MarshalJSON emits createdAt as epoch milliseconds.
func (p Preview) MarshalJSON() ([]byte, error) {
	w := previewWire{
		CounterpartID:        p.CounterpartID,
		CounterpartName:      p.CounterpartName,
		CounterpartAvatarURL: p.CounterpartAvatarURL,
		LatestMessageText:    p.LatestMessageText,
		UnreadCount:          p.UnreadCount,
	}
	if !p.LatestMessageAt.IsZero() {
		w.LatestMessageAt = json.RawMessage(strconv.FormatInt(p.LatestMessageAt.UnixMilli(), 10))
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts createdAt as epoch milliseconds or an RFC 3339 string.
func (p *Preview) UnmarshalJSON(data []byte) error {
	var w previewWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	at, err := ParseTimestamp(w.LatestMessageAt)
	if err != nil {
		return err
	}
	*p = Preview{
		CounterpartID:        w.CounterpartID,
		CounterpartName:      w.CounterpartName,
		CounterpartAvatarURL: w.CounterpartAvatarURL,
		LatestMessageText:    w.LatestMessageText,
		LatestMessageAt:      at,
		UnreadCount:          w.UnreadCount,
	}
	if p.UnreadCount < 0 {
		p.UnreadCount = 0
	}
	return nil
}

// Cursor tracks history pagination for one open thread.
type Cursor struct {
	Offset    int  `json:"offset"`
	PageSize  int  `json:"pageSize"`
	Exhausted bool `json:"exhausted"`
}
