package models

import "time"

// Account is a user identity record together with its login-security state.
// Security transitions in package security take an Account by value and
// return the next value; persisting it is the caller's job.
type Account struct {
	ID               string
	Name             string
	Email            string
	CredentialHash   string
	RoleID           int64
	Role             Role
	Active           bool
	FailedLoginCount int
	LockedUntil      *time.Time
	LastAccessAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the account's role carries administrator rights.
func (a Account) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// AccountStats is the dashboard summary of the account table.
type AccountStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Locked   int64 `json:"locked"`
}
