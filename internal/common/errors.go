// Package common defines shared constants and sentinel errors used across
// the account service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Account security state errors.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenAlreadyUsed     = errors.New("token already used")
	ErrLastAdminProtected   = errors.New("last active administrator cannot be deactivated or demoted")

	// Account lifecycle errors.
	ErrAccountLocked   = errors.New("account locked")
	ErrAccountInactive = errors.New("account inactive")
	ErrEmailTaken      = errors.New("email already in use")
	ErrWeakPassword    = errors.New("password does not satisfy policy")
	ErrRoleInactive    = errors.New("role inactive")
	ErrForbidden       = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
