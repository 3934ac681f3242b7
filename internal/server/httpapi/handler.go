// Package httpapi exposes the account services over HTTP/JSON.
package httpapi

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

type AccountManager interface {
	Create(ctx context.Context, in services.NewAccount) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	ListByRole(ctx context.Context, roleID int64) ([]models.Account, error)
	SearchByName(ctx context.Context, fragment string) ([]models.Account, error)
	ListLocked(ctx context.Context) ([]models.Account, error)
	ListWithFailedAttempts(ctx context.Context, min int) ([]models.Account, error)
	Stats(ctx context.Context) (models.AccountStats, error)
	Update(ctx context.Context, id string, in services.UpdateAccount) (*models.Account, error)
	SetActive(ctx context.Context, id string, active bool) error
	ChangePassword(ctx context.Context, id, current, next string) error
	Unlock(ctx context.Context, id string) (*models.Account, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*services.Actor, error)
}

type ResetManager interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
	ValidateToken(ctx context.Context, token string) (bool, error)
}

type Exporter interface {
	ExportAccounts(ctx context.Context) (string, error)
}

// Handler holds the services the HTTP handlers call into.
type Handler struct {
	accounts AccountManager
	auth     Authenticator
	resets   ResetManager
	exporter Exporter
	logger   logging.Logger
	now      func() time.Time
}

func NewHandler(accounts AccountManager, authn Authenticator, resets ResetManager, exporter Exporter, l logging.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		auth:     authn,
		resets:   resets,
		exporter: exporter,
		logger:   l.With("module", "httpapi"),
		now:      time.Now,
	}
}
