package security

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

// ResetTokenBytes is the entropy, in bytes, of generated reset token values.
const ResetTokenBytes = 32

// TokenGenerator supplies unique, unguessable reset token values.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator draws ResetTokenBytes from crypto/rand and hex-encodes them.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) Generate() (string, error) {
	return common.MakeRandHexString(ResetTokenBytes)
}

// IssueToken builds an unused token for accountID that expires validHours
// after now. validHours comes from caller configuration and must be positive.
func IssueToken(accountID string, validHours int, value string, now time.Time) (models.ResetToken, error) {
	if validHours <= 0 {
		return models.ResetToken{}, fmt.Errorf("reset token validity %dh: %w", validHours, common.ErrInvalidConfiguration)
	}

	return models.ResetToken{
		Token:     value,
		AccountID: accountID,
		ExpiresAt: now.Add(time.Duration(validHours) * time.Hour),
		CreatedAt: now,
	}, nil
}

// IsRedeemable reports whether tok can still be consumed at now.
// It is recomputed from Used and ExpiresAt on every call.
func IsRedeemable(tok models.ResetToken, now time.Time) bool {
	return !tok.Used && now.Before(tok.ExpiresAt)
}

// Redeem consumes tok. A used token fails with ErrTokenAlreadyUsed whatever
// its expiry; an unused one fails with ErrTokenExpired from ExpiresAt on.
// On failure tok is returned unchanged.
//
// The caller must persist the used flag in the same transaction that
// replaces the account's credential hash.
func Redeem(tok models.ResetToken, now time.Time) (models.ResetToken, error) {
	if tok.Used {
		return tok, common.ErrTokenAlreadyUsed
	}
	if !now.Before(tok.ExpiresAt) {
		return tok, common.ErrTokenExpired
	}

	tok.Used = true
	tok.UsedAt = &now
	return tok, nil
}

// ResetLifecycle binds the pure token rules to a value generator and a clock.
type ResetLifecycle struct {
	generator TokenGenerator
	clock     timex.Clock
}

func NewResetLifecycle(g TokenGenerator, c timex.Clock) *ResetLifecycle {
	return &ResetLifecycle{generator: g, clock: c}
}

// Issue generates a value and builds a token valid for validHours from now.
func (l *ResetLifecycle) Issue(accountID string, validHours int) (models.ResetToken, error) {
	if validHours <= 0 {
		return models.ResetToken{}, fmt.Errorf("reset token validity %dh: %w", validHours, common.ErrInvalidConfiguration)
	}

	value, err := l.generator.Generate()
	if err != nil {
		return models.ResetToken{}, fmt.Errorf("generate reset token: %w", err)
	}

	return IssueToken(accountID, validHours, value, l.clock.Now())
}

func (l *ResetLifecycle) IsRedeemable(tok models.ResetToken) bool {
	return IsRedeemable(tok, l.clock.Now())
}

func (l *ResetLifecycle) Redeem(tok models.ResetToken) (models.ResetToken, error) {
	return Redeem(tok, l.clock.Now())
}
