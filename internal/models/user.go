package models

import "encoding/json"

// User is a chat participant as returned by the auth endpoints.
type User struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"imageUrl,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id" for the user identifier.
func (u *User) UnmarshalJSON(data []byte) error {
	var wire struct {
		MongoID   string `json:"_id"`
		ID        string `json:"id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"imageUrl"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	u.ID = wire.MongoID
	if u.ID == "" {
		u.ID = wire.ID
	}
	u.Name = wire.Name
	u.Email = wire.Email
	u.AvatarURL = wire.AvatarURL
	return nil
}
