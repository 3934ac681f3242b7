package models

import "time"

// ResetToken is a single-use, time-bounded password reset credential.
//
// Token holds the plaintext value only between issuance and delivery; the
// store keeps TokenHash.
type ResetToken struct {
	ID        string
	Token     string
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}
