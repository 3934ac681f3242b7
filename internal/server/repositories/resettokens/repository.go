package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository stores password reset tokens by the digest of their value.
type Repository interface {
	Create(ctx context.Context, tok *models.ResetToken) (*models.ResetToken, error)
	GetByHash(ctx context.Context, hash string) (*models.ResetToken, error)
	GetByHashForUpdate(ctx context.Context, hash string) (*models.ResetToken, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
