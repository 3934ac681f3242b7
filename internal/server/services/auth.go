package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/security"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// AccountLockedError is returned by Login while an account is locked.
// It matches common.ErrAccountLocked with errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == common.ErrAccountLocked
}

type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     *models.Account
}

type AuthService struct {
	Deps
	jwtSecret           []byte
	accessTokenValidity time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(d Deps, jwtSecret []byte, accessTokenValidity time.Duration) *AuthService {
	return &AuthService{
		Deps:                d.withDefaults("auth"),
		jwtSecret:           jwtSecret,
		accessTokenValidity: accessTokenValidity,
	}
}

// Login authenticates email and password.
//
// The lock is checked before the password so a locked account answers the
// same way whether or not the password was right. A wrong password is
// recorded and committed even though the call fails.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	var (
		loginErr   error
		justLocked bool
		acc        *models.Account
	)

	err = dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.RepoManager.Accounts(tx)
		now := s.Clock.Now()

		var err error
		acc, err = accounts.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.burnVerify(password)
				loginErr = common.ErrorUnauthorized
				return nil
			}
			return err
		}

		if !acc.Active {
			loginErr = common.ErrAccountInactive
			return nil
		}
		if security.IsLocked(*acc, now) {
			loginErr = &AccountLockedError{Until: *acc.LockedUntil}
			return nil
		}

		ok, err := s.Hasher.Verify(acc.CredentialHash, []byte(password))
		if err != nil {
			return err
		}

		var next models.Account
		if ok {
			next = security.RecordSuccess(*acc, now)
		} else {
			next, justLocked = security.RecordFailure(*acc, now)
			loginErr = common.ErrorUnauthorized
		}
		if err := accounts.SaveSecurityState(ctx, &next); err != nil {
			return err
		}
		acc = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if justLocked {
		s.Logger.Warn(ctx, "account locked after too many failed logins",
			"account_id", acc.ID, "failed_logins", acc.FailedLoginCount, "locked_until", acc.LockedUntil)
		e := notify.NewEvent(notify.EventAccountLocked, acc.ID, acc.Email, s.Clock.Now())
		e.Data = map[string]string{"locked_until": acc.LockedUntil.UTC().Format(time.RFC3339)}
		s.publish(ctx, e)
	}
	if loginErr != nil {
		return nil, loginErr
	}

	now := s.Clock.Now()
	token, err := auth.GenerateToken(acc, s.jwtSecret, s.accessTokenValidity, now)
	if err != nil {
		return nil, err
	}

	s.Logger.Info(ctx, "login succeeded", "account_id", acc.ID)
	return &LoginResult{AccessToken: token, ExpiresAt: now.Add(s.accessTokenValidity), Account: acc}, nil
}

// Authenticate verifies an access token and resolves the actor behind it.
// The account is read on every call, so deactivation and role changes take
// effect before the token expires.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Actor, error) {
	claims, err := auth.GetClaimsFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	acc, err := s.RepoManager.Accounts(s.DB).GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !acc.Active {
		return nil, common.ErrAccountInactive
	}

	return &Actor{AccountID: acc.ID, Role: acc.Role}, nil
}

// burnVerify spends the time of one hash comparison so unknown emails take
// as long to reject as wrong passwords.
func (s *AuthService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash([]byte("not-a-real-password"))
	})
	if s.dummyHash != "" {
		_, _ = s.Hasher.Verify(s.dummyHash, []byte(password))
	}
}
