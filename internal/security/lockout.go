package security

import (
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

const (
	// MaxFailedAttempts is the failure count at which an account locks.
	MaxFailedAttempts = 5

	// LockoutWindow is how long a failure-triggered lock lasts.
	LockoutWindow = 15 * time.Minute
)

// IsLocked reports whether authentication must be refused at now.
// A lock that ends exactly at now is already over.
//
// Check it before comparing credentials so a locked account does not reveal
// whether the presented password was right.
func IsLocked(acc models.Account, now time.Time) bool {
	return acc.LockedUntil != nil && now.Before(*acc.LockedUntil)
}

// RecordSuccess returns acc after a successful login: counter reset, lock
// cleared (even if it had not expired yet) and last access stamped.
func RecordSuccess(acc models.Account, now time.Time) models.Account {
	acc = ClearLockout(acc)
	acc.LastAccessAt = &now
	return acc
}

// RecordFailure returns acc after a failed login and whether this failure
// is the one that locked it.
//
// The counter is incremented unconditionally. Once it reaches
// MaxFailedAttempts every further failure sets LockedUntil to now plus
// LockoutWindow, so a lock is extended from the current moment rather than
// stacked. The flag is true only on the unlocked-to-locked edge.
func RecordFailure(acc models.Account, now time.Time) (models.Account, bool) {
	wasLocked := IsLocked(acc, now)

	acc.FailedLoginCount++
	if acc.FailedLoginCount >= MaxFailedAttempts {
		until := now.Add(LockoutWindow)
		acc.LockedUntil = &until
	}

	return acc, !wasLocked && IsLocked(acc, now)
}

// ClearLockout zeroes the failure counter and removes any lock without
// touching LastAccessAt. Administrative unlocks use it directly.
func ClearLockout(acc models.Account) models.Account {
	acc.FailedLoginCount = 0
	acc.LockedUntil = nil
	return acc
}

// RemainingLockout is how long acc stays locked after now; zero when unlocked.
func RemainingLockout(acc models.Account, now time.Time) time.Duration {
	if !IsLocked(acc, now) {
		return 0
	}
	return acc.LockedUntil.Sub(now)
}
