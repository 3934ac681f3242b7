package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository persists accounts. Methods suffixed ForUpdate take a row lock
// and must run inside a transaction.
type Repository interface {
	Create(ctx context.Context, acc *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	Update(ctx context.Context, acc *models.Account) error
	SaveSecurityState(ctx context.Context, acc *models.Account) error
	UpdateCredential(ctx context.Context, id string, hash string) error
	SetActive(ctx context.Context, id string, active bool) error

	List(ctx context.Context) ([]models.Account, error)
	ListByRole(ctx context.Context, roleID int64) ([]models.Account, error)
	SearchByName(ctx context.Context, fragment string) ([]models.Account, error)
	ListLocked(ctx context.Context, now time.Time) ([]models.Account, error)
	ListWithFailedAttempts(ctx context.Context, min int) ([]models.Account, error)
	Stats(ctx context.Context, now time.Time) (models.AccountStats, error)

	// CountOtherActiveAdmins counts active accounts with an administrator
	// role other than excludeID, locking those rows for the transaction.
	// An empty excludeID counts them all.
	CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error)
}
