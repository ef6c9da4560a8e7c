package model

import "time"

// User owns credentials and bots. APIKey/APISecret are sensitive and must
// never be logged (spec.md §3, property 5).
type User struct {
	ID          string
	APIKey      string
	APISecret   string
	BotEnabled  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasCredentials reports whether both API key and secret are present.
func (u *User) HasCredentials() bool {
	return u != nil && u.APIKey != "" && u.APISecret != ""
}

// Admitted implements the Admission predicate from the glossary:
// user.botEnabled ∧ credentials-present ∧ bot.isActive ∧ bot.isRunning.
func Admitted(u *User, b *BotSpec) bool {
	return u != nil && u.BotEnabled && u.HasCredentials() && b != nil && b.IsActive && b.IsRunning
}
