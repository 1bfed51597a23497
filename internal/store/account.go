package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/internal/db"
	"github.com/newsdesk/apiserver/types"
)

const pqUniqueViolation = "23505"

const accountColumns = `
		id, username, email, password_hash, role, is_active, created_by,
		login_attempts, lock_until, last_login, created_at, updated_at`

// AccountRepository handles persistence for accounts in Postgres.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM accounts`
	var total int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// FindActiveByIdentifier matches an active account by username or email.
func (r *AccountRepository) FindActiveByIdentifier(ctx context.Context, identifier string) (types.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE (LOWER(username) = $1 OR LOWER(email) = $1) AND is_active
		LIMIT 1`
	return scanAccount(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(identifier))))
}

func (r *AccountRepository) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	return insertAccount(ctx, r.db, account)
}

// CreateFirst inserts account only if no account exists yet. The table lock
// serializes concurrent bootstrap attempts.
func (r *AccountRepository) CreateFirst(ctx context.Context, account types.Account) (types.Account, error) {
	var created types.Account
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE accounts IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		var total int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts`).Scan(&total); err != nil {
			return err
		}
		if total > 0 {
			return ErrNotEmpty
		}
		var err error
		created, err = insertAccount(ctx, tx, account)
		return err
	})
	if err != nil {
		return types.Account{}, err
	}
	return created, nil
}

// RecordLoginFailure applies a failed login in one statement so concurrent
// failures on the same account never lose an increment.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy auth.LockoutPolicy) (auth.LockoutState, error) {
	const query = `
		UPDATE accounts
		SET login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN NULL
				WHEN lock_until IS NULL AND login_attempts + 1 >= $3 THEN $4::timestamptz
				ELSE lock_until
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING login_attempts, lock_until`

	var state auth.LockoutState
	var lockUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id, now, policy.MaxAttempts, now.Add(policy.LockDuration)).
		Scan(&state.Attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.LockoutState{}, ErrNotFound
		}
		return auth.LockoutState{}, err
	}
	state.LockUntil = nullTimePtr(lockUntil)
	return state, nil
}

func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	const query = `
		UPDATE accounts
		SET login_attempts = 0,
			lock_until = NULL,
			last_login = $2,
			updated_at = $2
		WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id, now)
}

func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id, active, time.Now())
}

func (r *AccountRepository) SetRole(ctx context.Context, id string, role types.Role, createdBy *string) error {
	const query = `UPDATE accounts SET role = $2, created_by = $3, updated_at = $4 WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id, string(role), nullString(createdBy), time.Now())
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id, passwordHash, time.Now())
}

func insertAccount(ctx context.Context, q db.DBTX, account types.Account) (types.Account, error) {
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	const query = `
		INSERT INTO accounts (id, username, email, password_hash, role, is_active, created_by,
			login_attempts, lock_until, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.ExecContext(
		ctx,
		query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.IsActive,
		nullString(account.CreatedBy),
		account.LoginAttempts,
		nullTime(account.LockUntil),
		nullTime(account.LastLogin),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	var role string
	var createdBy sql.NullString
	var lockUntil, lastLogin sql.NullTime
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.IsActive,
		&createdBy,
		&account.LoginAttempts,
		&lockUntil,
		&lastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	account.Role = types.Role(role)
	if createdBy.Valid {
		account.CreatedBy = &createdBy.String
	}
	account.LockUntil = nullTimePtr(lockUntil)
	account.LastLogin = nullTimePtr(lastLogin)
	return account, nil
}

func execAffectingOne(ctx context.Context, q db.DBTX, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
