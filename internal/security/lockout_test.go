package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestRecordFailure_LocksOnFifthFailure(t *testing.T) {
	acc := models.Account{ID: "a1", Active: true}

	for i := 1; i < MaxFailedAttempts; i++ {
		var locked bool
		acc, locked = RecordFailure(acc, t0)
		assert.False(t, locked, "failure %d", i)
		assert.Nil(t, acc.LockedUntil)
		assert.Equal(t, i, acc.FailedLoginCount)
	}

	acc, locked := RecordFailure(acc, t0)
	require.True(t, locked)
	assert.Equal(t, 5, acc.FailedLoginCount)
	require.NotNil(t, acc.LockedUntil)
	assert.Equal(t, t0.Add(15*time.Minute), *acc.LockedUntil)
}

func TestRecordFailure_FromFourFailures(t *testing.T) {
	acc := models.Account{FailedLoginCount: 4}

	next, locked := RecordFailure(acc, t0)

	assert.True(t, locked)
	assert.Equal(t, 5, next.FailedLoginCount)
	assert.Equal(t, t0.Add(15*time.Minute), *next.LockedUntil)
	assert.Equal(t, 4, acc.FailedLoginCount, "input must not be mutated")
}

func TestRecordFailure_FromZero(t *testing.T) {
	next, locked := RecordFailure(models.Account{}, t0)

	assert.False(t, locked)
	assert.Equal(t, 1, next.FailedLoginCount)
	assert.Nil(t, next.LockedUntil)
}

func TestRecordFailure_WhileLockedExtendsFromNow(t *testing.T) {
	acc := models.Account{FailedLoginCount: 5, LockedUntil: ptr(t0.Add(15 * time.Minute))}
	now := t0.Add(5 * time.Minute)

	next, locked := RecordFailure(acc, now)

	assert.False(t, locked, "already locked is not a new lock")
	assert.Equal(t, 6, next.FailedLoginCount)
	assert.Equal(t, now.Add(15*time.Minute), *next.LockedUntil)
}

func TestRecordFailure_AfterExpiredLockRelocks(t *testing.T) {
	acc := models.Account{FailedLoginCount: 5, LockedUntil: ptr(t0)}
	now := t0.Add(20 * time.Minute)

	next, locked := RecordFailure(acc, now)

	assert.True(t, locked)
	assert.Equal(t, 6, next.FailedLoginCount)
	assert.Equal(t, now.Add(LockoutWindow), *next.LockedUntil)
}

func TestRecordSuccess_ClearsEverything(t *testing.T) {
	acc := models.Account{FailedLoginCount: 3, LockedUntil: ptr(t0.Add(time.Hour))}

	next := RecordSuccess(acc, t0)

	assert.Zero(t, next.FailedLoginCount)
	assert.Nil(t, next.LockedUntil)
	require.NotNil(t, next.LastAccessAt)
	assert.Equal(t, t0, *next.LastAccessAt)
	assert.False(t, IsLocked(next, t0))
}

func TestIsLocked_Boundary(t *testing.T) {
	until := t0.Add(LockoutWindow)
	acc := models.Account{FailedLoginCount: 5, LockedUntil: &until}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", until.Add(-time.Nanosecond), true},
		{"equal", until, false},
		{"after", until.Add(time.Second), false},
		{"at lock time", t0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLocked(acc, tt.now))
		})
	}

	assert.False(t, IsLocked(models.Account{}, t0))
}

func TestLockoutScenario(t *testing.T) {
	acc := models.Account{ID: "u", Active: true}

	var lockedEdges int
	for i := 0; i < 5; i++ {
		var locked bool
		acc, locked = RecordFailure(acc, t0)
		if locked {
			lockedEdges++
		}
	}
	assert.Equal(t, 1, lockedEdges)
	assert.True(t, IsLocked(acc, t0.Add(14*time.Minute)))
	assert.False(t, IsLocked(acc, t0.Add(15*time.Minute)))

	acc = RecordSuccess(acc, t0.Add(16*time.Minute))
	assert.Zero(t, acc.FailedLoginCount)
}

func TestClearLockout_KeepsLastAccess(t *testing.T) {
	last := t0.Add(-time.Hour)
	acc := models.Account{FailedLoginCount: 7, LockedUntil: ptr(t0.Add(time.Minute)), LastAccessAt: &last}

	next := ClearLockout(acc)

	assert.Zero(t, next.FailedLoginCount)
	assert.Nil(t, next.LockedUntil)
	assert.Equal(t, &last, next.LastAccessAt)
}

func TestRemainingLockout(t *testing.T) {
	acc := models.Account{LockedUntil: ptr(t0.Add(10 * time.Minute))}

	assert.Equal(t, 10*time.Minute, RemainingLockout(acc, t0))
	assert.Zero(t, RemainingLockout(acc, t0.Add(10*time.Minute)))
	assert.Zero(t, RemainingLockout(models.Account{}, t0))
}
