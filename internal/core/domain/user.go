package domain

import "time"

// User mirrors the persisted representation in the auth.users table.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	PasswordAlgo string
	Verified     bool
	Blocked      bool
	BlockedAt    *time.Time
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// CanAuthenticate reports whether the account may receive new tokens.
func (u User) CanAuthenticate() bool {
	return u.Verified && !u.Blocked
}

// Sanitized returns a copy with credential material removed.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}
