package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/security"
)

type PasswordResetService struct {
	Deps
	lifecycle  *security.ResetLifecycle
	validHours int
}

// NewPasswordResetService fails with ErrInvalidConfiguration unless
// validHours is positive.
func NewPasswordResetService(d Deps, gen security.TokenGenerator, validHours int) (*PasswordResetService, error) {
	if validHours <= 0 {
		return nil, fmt.Errorf("reset token validity %dh: %w", validHours, common.ErrInvalidConfiguration)
	}
	d = d.withDefaults("password_reset")
	if gen == nil {
		gen = security.RandomTokenGenerator{}
	}
	return &PasswordResetService{
		Deps:       d,
		lifecycle:  security.NewResetLifecycle(gen, d.Clock),
		validHours: validHours,
	}, nil
}

// RequestReset issues a token for the account registered under email and
// publishes it for delivery. Unknown and inactive addresses succeed
// silently so callers cannot probe which emails exist.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	acc, err := s.RepoManager.Accounts(s.DB).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.Logger.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return err
	}
	if !acc.Active {
		s.Logger.Debug(ctx, "password reset for inactive account", "account_id", acc.ID)
		return nil
	}

	tok, err := s.lifecycle.Issue(acc.ID, s.validHours)
	if err != nil {
		return err
	}
	tok.TokenHash = cryptox.TokenDigest(tok.Token)

	if _, err := s.RepoManager.ResetTokens(s.DB).Create(ctx, &tok); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}

	e := notify.NewEvent(notify.EventPasswordResetRequested, acc.ID, acc.Email, tok.CreatedAt)
	e.Data = map[string]string{
		"token":      tok.Token,
		"expires_at": tok.ExpiresAt.UTC().Format(time.RFC3339),
	}
	s.publish(ctx, e)

	s.Logger.Info(ctx, "password reset requested", "account_id", acc.ID, "expires_at", tok.ExpiresAt)
	return nil
}

// ConfirmReset redeems token and sets newPassword. The credential update
// and the used flag commit together or not at all. Tokens of accounts
// deactivated after issue are refused and stay unused.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	var accountID string
	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.RepoManager.ResetTokens(tx)
		accounts := s.RepoManager.Accounts(tx)

		stored, err := tokens.GetByHashForUpdate(ctx, cryptox.TokenDigest(token))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}

		redeemed, err := s.lifecycle.Redeem(*stored)
		if err != nil {
			return err
		}

		acc, err := accounts.GetByIDForUpdate(ctx, redeemed.AccountID)
		if err != nil {
			return err
		}
		if !acc.Active {
			return common.ErrAccountInactive
		}

		password := []byte(newPassword)
		hash, err := s.Hasher.Hash(password)
		common.WipeByteArray(password)
		if err != nil {
			return err
		}

		if err := accounts.UpdateCredential(ctx, acc.ID, hash); err != nil {
			return err
		}
		if err := tokens.MarkUsed(ctx, redeemed.ID, *redeemed.UsedAt); err != nil {
			return err
		}
		accountID = acc.ID
		return nil
	})
	if err != nil {
		return err
	}

	s.Logger.Info(ctx, "password reset completed", "account_id", accountID)
	s.publish(ctx, notify.NewEvent(notify.EventPasswordChanged, accountID, "", s.Clock.Now()))
	return nil
}

// ValidateToken reports whether token exists and can still be redeemed.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (bool, error) {
	stored, err := s.RepoManager.ResetTokens(s.DB).GetByHash(ctx, cryptox.TokenDigest(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.lifecycle.IsRedeemable(*stored), nil
}

// PurgeExpired deletes tokens that expired before now.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.RepoManager.ResetTokens(s.DB).DeleteExpired(ctx, s.Clock.Now())
}
