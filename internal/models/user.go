package models

import "github.com/google/uuid"

// User is the slice of the account profile the session engine consumes.
// Account creation and credential checks live in a separate service; this
// server only loads profiles and applies match results.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`

	Coins        int `json:"coins"`
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	PlaytimeMins int `json:"playtime_mins"`
}
