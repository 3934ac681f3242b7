package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

const (
	selectAccount = `SELECT a.id, a.name, a.email, a.credential_hash, a.role_id, a.active,
		a.failed_login_count, a.locked_until, a.last_access_at, a.created_at, a.updated_at,
		r.name, r.description, r.active
		FROM accounts a JOIN roles r ON r.id = a.role_id`

	adminRole = `r.name IN ('` + models.RoleNameAdmin + `', '` + models.RoleNameAdministrador + `')`

	uniqueViolation = "23505"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, acc *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (name, email, credential_hash, role_id, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		acc.Name, acc.Email, acc.CredentialHash, acc.RoleID, acc.Active).
		Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return acc, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE a.id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE a.email = $1`, email)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE a.id = $1 FOR UPDATE OF a`, id)
}

func (r *PostgresRepository) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE a.email = $1 FOR UPDATE OF a`, email)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, acc *models.Account) error {
	query :=
		`UPDATE accounts SET name = $2, email = $3, role_id = $4, active = $5, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, acc.ID, acc.Name, acc.Email, acc.RoleID, acc.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrEmailTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// SaveSecurityState writes the fields owned by the lockout tracker.
func (r *PostgresRepository) SaveSecurityState(ctx context.Context, acc *models.Account) error {
	query :=
		`UPDATE accounts SET failed_login_count = $2, locked_until = $3, last_access_at = $4, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, acc.ID, acc.FailedLoginCount, acc.LockedUntil, acc.LastAccessAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) UpdateCredential(ctx context.Context, id string, hash string) error {
	query := `UPDATE accounts SET credential_hash = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE accounts SET active = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Account, error) {
	return r.getMany(ctx, selectAccount+` ORDER BY a.name`)
}

func (r *PostgresRepository) ListByRole(ctx context.Context, roleID int64) ([]models.Account, error) {
	return r.getMany(ctx, selectAccount+` WHERE a.role_id = $1 AND a.active ORDER BY a.name`, roleID)
}

// SearchByName matches fragment case-insensitively anywhere in the name.
func (r *PostgresRepository) SearchByName(ctx context.Context, fragment string) ([]models.Account, error) {
	return r.getMany(ctx, selectAccount+` WHERE a.name ILIKE $1 ORDER BY a.name`, "%"+escapeLike(fragment)+"%")
}

func (r *PostgresRepository) ListLocked(ctx context.Context, now time.Time) ([]models.Account, error) {
	return r.getMany(ctx, selectAccount+` WHERE a.locked_until > $1 ORDER BY a.locked_until`, now)
}

func (r *PostgresRepository) ListWithFailedAttempts(ctx context.Context, min int) ([]models.Account, error) {
	return r.getMany(ctx, selectAccount+` WHERE a.failed_login_count >= $1 ORDER BY a.failed_login_count DESC`, min)
}

func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (models.AccountStats, error) {
	query :=
		`SELECT count(*),
		        count(*) FILTER (WHERE active),
		        count(*) FILTER (WHERE NOT active),
		        count(*) FILTER (WHERE locked_until > $1)
		 FROM accounts`

	var s models.AccountStats
	if err := r.db.QueryRowContext(ctx, query, now).Scan(&s.Total, &s.Active, &s.Inactive, &s.Locked); err != nil {
		return models.AccountStats{}, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// CountOtherActiveAdmins selects the rows instead of using count(*) because
// PostgreSQL does not allow FOR UPDATE with aggregates. Locking them keeps two
// administrators from demoting each other concurrently.
func (r *PostgresRepository) CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	query :=
		`SELECT a.id FROM accounts a JOIN roles r ON r.id = a.role_id
		 WHERE a.active AND a.id::text <> $1 AND ` + adminRole + `
		 FOR UPDATE OF a`

	rows, err := r.db.QueryContext(ctx, query, excludeID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *PostgresRepository) getMany(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	var acc models.Account
	err := s.Scan(
		&acc.ID, &acc.Name, &acc.Email, &acc.CredentialHash, &acc.RoleID, &acc.Active,
		&acc.FailedLoginCount, &acc.LockedUntil, &acc.LastAccessAt, &acc.CreatedAt, &acc.UpdatedAt,
		&acc.Role.Name, &acc.Role.Description, &acc.Role.Active,
	)
	if err != nil {
		return nil, err
	}
	acc.Role.ID = acc.RoleID
	acc.Role.Capabilities = models.CapabilitiesFor(acc.Role.Name)
	return &acc, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
