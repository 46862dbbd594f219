package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewClientMessageID returns a sortable id attached to locally sent
// messages so their server echo can be recognized.
func NewClientMessageID() string {
	return ulid.Make().String()
}
