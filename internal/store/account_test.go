package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAccountRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewAccountRepository(conn), mock
}

var accountRowColumns = []string{
	"id", "username", "email", "password_hash", "role", "is_active", "created_by",
	"login_attempts", "lock_until", "last_login", "created_at", "updated_at",
}

func TestAccountRepository_FindActiveByIdentifier(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM accounts\s+WHERE \(LOWER\(username\) = \$1 OR LOWER\(email\) = \$1\) AND is_active`).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow("a-1", "admin", "admin@newsapp.com", "hash", "super_admin", true, nil, 2, nil, nil, created, created))

	account, err := repo.FindActiveByIdentifier(context.Background(), "  Admin ")
	require.NoError(t, err)
	assert.Equal(t, "a-1", account.ID)
	assert.Equal(t, types.RoleSuperAdmin, account.Role)
	assert.Equal(t, 2, account.LoginAttempts)
	assert.Nil(t, account.CreatedBy)
	assert.Nil(t, account.LockUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(`FROM accounts\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	_, err := repo.Create(context.Background(), types.Account{ID: "a-1", Username: "x", Email: "x@y.z", Role: types.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateFirst(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE accounts IN SHARE ROW EXCLUSIVE MODE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	account, err := repo.CreateFirst(context.Background(), types.Account{
		ID: "a-1", Username: "admin", Email: "admin@newsapp.com", Role: types.RoleSuperAdmin, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", account.ID)
	assert.False(t, account.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateFirstNotEmpty(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE accounts`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.CreateFirst(context.Background(), types.Account{ID: "a-2"})
	assert.ErrorIs(t, err, ErrNotEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_RecordLoginFailure(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	policy := auth.DefaultLockoutPolicy()
	until := now.Add(policy.LockDuration)

	mock.ExpectQuery(`UPDATE accounts\s+SET login_attempts = CASE`).
		WithArgs("a-1", now, policy.MaxAttempts, until).
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(5, until))

	state, err := repo.RecordLoginFailure(context.Background(), "a-1", now, policy)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Attempts)
	require.NotNil(t, state.LockUntil)
	assert.True(t, state.LockUntil.Equal(until))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_RecordLoginFailureUnknown(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(`UPDATE accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}))

	_, err := repo.RecordLoginFailure(context.Background(), "nope", time.Now(), auth.DefaultLockoutPolicy())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepository_RecordLoginSuccess(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	now := time.Now()

	mock.ExpectExec(`SET login_attempts = 0,\s+lock_until = NULL,\s+last_login = \$2`).
		WithArgs("a-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLoginSuccess(context.Background(), "a-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_UpdatesReportNotFound(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE accounts SET is_active`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE accounts SET role`).
		WithArgs("a-1", "admin", "root", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE accounts SET password_hash`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	root := "root"
	assert.ErrorIs(t, repo.SetActive(ctx, "a-1", false), ErrNotFound)
	assert.ErrorIs(t, repo.SetRole(ctx, "a-1", types.RoleAdmin, &root), ErrNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "a-1", "hash"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_List(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastLogin := created.Add(time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY created_at, id\s+OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 20).
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow("a-1", "admin", "admin@newsapp.com", "h", "super_admin", true, nil, 0, nil, lastLogin, created, created).
			AddRow("a-2", "editor", "editor@newsapp.com", "h", "admin", true, "a-1", 0, nil, nil, created, created))

	accounts, total, err := repo.List(context.Background(), -5, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, accounts, 2)
	require.NotNil(t, accounts[0].LastLogin)
	require.NotNil(t, accounts[1].CreatedBy)
	assert.Equal(t, "a-1", *accounts[1].CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
