package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS accounts (id INTEGER PRIMARY KEY, failed_login_count INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO accounts (id, failed_login_count) VALUES (1, 0)`)
	require.NoError(t, err)
	return db
}

func failedCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT failed_login_count FROM accounts WHERE id = 1`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `UPDATE accounts SET failed_login_count = failed_login_count + 1 WHERE id = 1`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failedCount(t, db))
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `UPDATE accounts SET failed_login_count = 5 WHERE id = 1`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, failedCount(t, db), "must rollback when fn returns error")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		require.NotNil(t, recover(), "expected panic to propagate")
		assert.Equal(t, 0, failedCount(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `UPDATE accounts SET failed_login_count = 9 WHERE id = 1`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	assert.Error(t, err, "begin should fail when DB is closed")
}

func TestInTx_ReturnsValue(t *testing.T) {
	db := setupDB(t)

	n, err := InTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) (int, error) {
		var n int
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET failed_login_count = 3 WHERE id = 1`); err != nil {
			return 0, err
		}
		err := tx.QueryRowContext(ctx, `SELECT failed_login_count FROM accounts WHERE id = 1`).Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, failedCount(t, db))
}

func TestInTx_ErrorDiscardsValue(t *testing.T) {
	db := setupDB(t)

	n, err := InTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) (int, error) {
		return 7, errors.New("nope")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}
