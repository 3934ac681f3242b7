package security

import (
	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// CanDeactivateOrDemote reports whether an account holding role may be
// deactivated or moved off an administrator role, given how many OTHER
// active accounts hold an administrator role. It is false only for the last
// active administrator.
func CanDeactivateOrDemote(role models.Role, otherActiveAdmins int) bool {
	return !(role.IsAdmin() && otherActiveAdmins == 0)
}

// CheckDeactivateOrDemote is CanDeactivateOrDemote as an error:
// ErrLastAdminProtected when forbidden. Callers must not mutate anything
// when it fails.
func CheckDeactivateOrDemote(role models.Role, otherActiveAdmins int) error {
	if !CanDeactivateOrDemote(role, otherActiveAdmins) {
		return common.ErrLastAdminProtected
	}
	return nil
}
