package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/security"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/roles"
)

type NewAccount struct {
	Name     string
	Email    string
	Password string
	RoleID   int64
}

type UpdateAccount struct {
	Name   string
	Email  string
	RoleID int64
}

type AccountService struct {
	Deps
}

func NewAccountService(d Deps) *AccountService {
	return &AccountService{Deps: d.withDefaults("accounts")}
}

func (s *AccountService) Create(ctx context.Context, in NewAccount) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", common.ErrorValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid email %q: %w", in.Email, err)
	}
	if err := checkPasswordPolicy(in.Password); err != nil {
		return nil, err
	}

	role, err := loadAssignableRole(ctx, s.RepoManager.Roles(s.DB), in.RoleID)
	if err != nil {
		return nil, err
	}
	if role.IsAdmin() {
		if err := s.authorizeAdminChange(ctx, ""); err != nil {
			return nil, err
		}
	}

	accounts := s.RepoManager.Accounts(s.DB)
	exists, err := accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error checking email: %w", err)
	}
	if exists {
		return nil, common.ErrEmailTaken
	}

	password := []byte(in.Password)
	hash, err := s.Hasher.Hash(password)
	common.WipeByteArray(password)
	if err != nil {
		return nil, err
	}

	acc, err := accounts.Create(ctx, &models.Account{
		Name:           name,
		Email:          email,
		CredentialHash: hash,
		RoleID:         role.ID,
		Role:           *role,
		Active:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	s.Logger.Info(ctx, "account created", "account_id", acc.ID, "role", role.Name)
	return acc, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.RepoManager.Accounts(s.DB).GetByID(ctx, id)
}

func (s *AccountService) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	return s.RepoManager.Accounts(s.DB).GetByEmail(ctx, email)
}

func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	return s.RepoManager.Accounts(s.DB).List(ctx)
}

// ListByRole returns the active accounts holding roleID.
func (s *AccountService) ListByRole(ctx context.Context, roleID int64) ([]models.Account, error) {
	return s.RepoManager.Accounts(s.DB).ListByRole(ctx, roleID)
}

func (s *AccountService) SearchByName(ctx context.Context, fragment string) ([]models.Account, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, fmt.Errorf("search fragment is required: %w", common.ErrorValidation)
	}
	return s.RepoManager.Accounts(s.DB).SearchByName(ctx, fragment)
}

// ListLocked returns accounts whose lock has not yet expired.
func (s *AccountService) ListLocked(ctx context.Context) ([]models.Account, error) {
	return s.RepoManager.Accounts(s.DB).ListLocked(ctx, s.Clock.Now())
}

func (s *AccountService) ListWithFailedAttempts(ctx context.Context, min int) ([]models.Account, error) {
	if min < 1 {
		min = 1
	}
	return s.RepoManager.Accounts(s.DB).ListWithFailedAttempts(ctx, min)
}

func (s *AccountService) Stats(ctx context.Context) (models.AccountStats, error) {
	return s.RepoManager.Accounts(s.DB).Stats(ctx, s.Clock.Now())
}

// Update changes name, email and role. Touching an administrator account or
// granting an administrator role needs an administrator actor. Moving the
// last active administrator to a non-administrator role fails with
// ErrLastAdminProtected.
func (s *AccountService) Update(ctx context.Context, id string, in UpdateAccount) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", common.ErrorValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid email %q: %w", in.Email, err)
	}

	return dbx.InTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Account, error) {
		accounts := s.RepoManager.Accounts(tx)

		acc, err := accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if acc.IsAdmin() {
			if err := s.authorizeAdminChange(ctx, acc.ID); err != nil {
				return nil, err
			}
		}

		if email != acc.Email {
			exists, err := accounts.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("error checking email: %w", err)
			}
			if exists {
				return nil, common.ErrEmailTaken
			}
		}

		if in.RoleID != acc.RoleID {
			role, err := loadAssignableRole(ctx, s.RepoManager.Roles(tx), in.RoleID)
			if err != nil {
				return nil, err
			}
			if role.IsAdmin() {
				if err := s.authorizeAdminChange(ctx, acc.ID); err != nil {
					return nil, err
				}
			}
			if acc.Active && acc.IsAdmin() && !role.IsAdmin() {
				if err := s.guard(ctx, accounts, acc); err != nil {
					return nil, err
				}
			}
			acc.RoleID = role.ID
			acc.Role = *role
		}

		acc.Name = name
		acc.Email = email
		if err := accounts.Update(ctx, acc); err != nil {
			return nil, err
		}
		return acc, nil
	})
}

// SetActive activates or deactivates an account. Administrator accounts can
// only be changed by an administrator actor, and deactivating the last active
// administrator fails with ErrLastAdminProtected.
func (s *AccountService) SetActive(ctx context.Context, id string, active bool) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.RepoManager.Accounts(tx)

		acc, err := accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if acc.IsAdmin() {
			if err := s.authorizeAdminChange(ctx, acc.ID); err != nil {
				return err
			}
		}
		if acc.Active == active {
			return nil
		}
		if !active && acc.IsAdmin() {
			if err := s.guard(ctx, accounts, acc); err != nil {
				return err
			}
		}
		if err := accounts.SetActive(ctx, acc.ID, active); err != nil {
			return err
		}

		s.Logger.Info(ctx, "account status changed", "account_id", acc.ID, "active", active)
		return nil
	})
}

// ChangePassword replaces the credential after verifying the current one.
func (s *AccountService) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := checkPasswordPolicy(next); err != nil {
		return err
	}

	var acc *models.Account
	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.RepoManager.Accounts(tx)

		var err error
		acc, err = accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		ok, err := s.Hasher.Verify(acc.CredentialHash, []byte(current))
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrorUnauthorized
		}

		password := []byte(next)
		hash, err := s.Hasher.Hash(password)
		common.WipeByteArray(password)
		if err != nil {
			return err
		}
		return accounts.UpdateCredential(ctx, acc.ID, hash)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, notify.NewEvent(notify.EventPasswordChanged, acc.ID, acc.Email, s.Clock.Now()))
	return nil
}

// Unlock clears the failure counter and any lock. LastAccessAt is left
// alone since no login took place.
func (s *AccountService) Unlock(ctx context.Context, id string) (*models.Account, error) {
	return dbx.InTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Account, error) {
		accounts := s.RepoManager.Accounts(tx)

		acc, err := accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}

		next := security.ClearLockout(*acc)
		if err := accounts.SaveSecurityState(ctx, &next); err != nil {
			return nil, err
		}

		s.Logger.Info(ctx, "account unlocked", "account_id", acc.ID)
		return &next, nil
	})
}

func (s *AccountService) authorizeAdminChange(ctx context.Context, targetID string) error {
	if err := requireAdministrator(ctx); err != nil {
		a, _ := ActorFrom(ctx)
		s.Logger.Warn(ctx, "refused administrator change", "actor_id", a.AccountID, "account_id", targetID)
		return err
	}
	return nil
}

type adminCounter interface {
	CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error)
}

func (s *AccountService) guard(ctx context.Context, accounts adminCounter, acc *models.Account) error {
	others, err := accounts.CountOtherActiveAdmins(ctx, acc.ID)
	if err != nil {
		return err
	}
	if err := security.CheckDeactivateOrDemote(acc.Role, others); err != nil {
		s.Logger.Warn(ctx, "refused to remove last active administrator", "account_id", acc.ID)
		return err
	}
	return nil
}

func loadAssignableRole(ctx context.Context, repo roles.Repository, id int64) (*models.Role, error) {
	role, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("role %d does not exist: %w", id, common.ErrorValidation)
		}
		return nil, err
	}
	if !role.Active {
		return nil, common.ErrRoleInactive
	}
	return role, nil
}
