package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

const selectToken = `SELECT id, token_hash, account_id, expires_at, used, used_at, created_at FROM password_reset_tokens`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores tok.TokenHash; the plaintext Token field is never written.
func (r *PostgresRepository) Create(ctx context.Context, tok *models.ResetToken) (*models.ResetToken, error) {
	query :=
		`INSERT INTO password_reset_tokens (token_hash, account_id, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		tok.TokenHash, tok.AccountID, tok.ExpiresAt, tok.Used, tok.CreatedAt).Scan(&tok.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tok, nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*models.ResetToken, error) {
	return r.getOne(ctx, selectToken+` WHERE token_hash = $1`, hash)
}

func (r *PostgresRepository) GetByHashForUpdate(ctx context.Context, hash string) (*models.ResetToken, error) {
	return r.getOne(ctx, selectToken+` WHERE token_hash = $1 FOR UPDATE`, hash)
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE id = $1 AND NOT used`

	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrTokenAlreadyUsed
	}
	return nil
}

// DeleteExpired removes tokens that expired before the given instant.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, hash string) (*models.ResetToken, error) {
	var tok models.ResetToken
	err := r.db.QueryRowContext(ctx, query, hash).
		Scan(&tok.ID, &tok.TokenHash, &tok.AccountID, &tok.ExpiresAt, &tok.Used, &tok.UsedAt, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &tok, nil
}
