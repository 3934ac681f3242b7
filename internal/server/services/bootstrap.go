package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// ErrAdminExists is returned by BootstrapAdmin when an active administrator
// is already present.
var ErrAdminExists = errors.New("an active administrator already exists")

// BootstrapAdmin creates the first administrator under the ADMIN role.
// It refuses with ErrAdminExists once any active administrator exists, so
// running it twice is harmless.
func (s *AccountService) BootstrapAdmin(ctx context.Context, name, email, password string) (*models.Account, error) {
	others, err := s.RepoManager.Accounts(s.DB).CountOtherActiveAdmins(ctx, "")
	if err != nil {
		return nil, err
	}
	if others > 0 {
		return nil, ErrAdminExists
	}

	role, err := s.RepoManager.Roles(s.DB).GetByName(ctx, models.RoleNameAdmin)
	if err != nil {
		return nil, fmt.Errorf("admin role: %w", err)
	}
	if !role.IsAdmin() {
		return nil, fmt.Errorf("role %s lacks administrator capability: %w", role.Name, common.ErrInvalidConfiguration)
	}

	return s.Create(WithActor(ctx, systemActor), NewAccount{Name: name, Email: email, Password: password, RoleID: role.ID})
}
