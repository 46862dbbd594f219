package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Message is a single direct message between the local user and a counterpart.
type Message struct {
	ID       string `json:"_id,omitempty"`
	ClientID string `json:"clientId,omitempty"` // ULID, set on locally sent messages

	SenderID   string    `json:"sender"`
	ReceiverID string    `json:"receiver"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`

	// Display fields of the receiver as set by the sending client.
	CounterpartName      string `json:"name,omitempty"`
	CounterpartAvatarURL string `json:"imageUrl,omitempty"`

	// Display fields of the sender, attached by the server on delivery.
	SenderName      string `json:"-"`
	SenderAvatarURL string `json:"-"`

	// Failed is set when a local send could not be emitted on the channel.
	Failed bool `json:"failed,omitempty"`
}

// CounterpartOf returns the endpoint of m that is not localUserID.
func (m Message) CounterpartOf(localUserID string) string {
	if m.SenderID == localUserID {
		return m.ReceiverID
	}
	return m.SenderID
}

// IsOutbound reports whether m was sent by localUserID.
func (m Message) IsOutbound(localUserID string) bool {
	return m.SenderID == localUserID
}

type senderUser struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

type messageWire struct {
	ID         string          `json:"_id,omitempty"`
	ClientID   string          `json:"clientId,omitempty"`
	To         string          `json:"to,omitempty"`
	SenderID   string          `json:"sender"`
	ReceiverID string          `json:"receiver"`
	Body       string          `json:"message"`
	Name       string          `json:"name,omitempty"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	CreatedAt  json.RawMessage `json:"createdAt,omitempty"`
	SenderUser *senderUser     `json:"senderUser,omitempty"`
	Failed     bool            `json:"failed,omitempty"`
}

// MarshalJSON emits the socket wire shape; createdAt is epoch milliseconds.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		ID:         m.ID,
		ClientID:   m.ClientID,
		To:         m.ReceiverID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Name:       m.CounterpartName,
		ImageURL:   m.CounterpartAvatarURL,
		Failed:     m.Failed,
	}
	if m.SenderName != "" || m.SenderAvatarURL != "" {
		w.SenderUser = &senderUser{Name: m.SenderName, ImageURL: m.SenderAvatarURL}
	}
	if !m.CreatedAt.IsZero() {
		w.CreatedAt = json.RawMessage(strconv.FormatInt(m.CreatedAt.UnixMilli(), 10))
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts createdAt as epoch milliseconds or an RFC 3339 string.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	createdAt, err := ParseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}

	*m = Message{
		ID:                   w.ID,
		ClientID:             w.ClientID,
		SenderID:             w.SenderID,
		ReceiverID:           w.ReceiverID,
		Body:                 w.Body,
		CreatedAt:            createdAt,
		CounterpartName:      w.Name,
		CounterpartAvatarURL: w.ImageURL,
		Failed:               w.Failed,
	}
	if m.ReceiverID == "" {
		m.ReceiverID = w.To
	}
	if w.SenderUser != nil {
		m.SenderName = w.SenderUser.Name
		m.SenderAvatarURL = w.SenderUser.ImageURL
	}
	return nil
}

// CounterpartDisplay returns the name and avatar of the endpoint that is not
// localUserID, as far as m carries them.
func (m Message) CounterpartDisplay(localUserID string) (name, avatarURL string) {
	if m.IsOutbound(localUserID) {
		return m.CounterpartName, m.CounterpartAvatarURL
	}
	name, avatarURL = m.SenderName, m.SenderAvatarURL
	if name == "" {
		name = m.CounterpartName
	}
	if avatarURL == "" {
		avatarURL = m.CounterpartAvatarURL
	}
	return name, avatarURL
}

// ParseTimestamp decodes a JSON timestamp given either as epoch
// milliseconds or as an RFC 3339 string. Empty and null yield the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
	}
	return time.UnixMilli(int64(ms)), nil
}
