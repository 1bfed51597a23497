package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/types"
)

// MemoryAccountRepository keeps accounts in process memory. It backs
// DB_DRIVER=memory and the service tests.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]types.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]types.Account)}
}

func (r *MemoryAccountRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts), nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepository) FindActiveByIdentifier(ctx context.Context, identifier string) (types.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if !account.IsActive {
			continue
		}
		if strings.ToLower(account.Username) == identifier || strings.ToLower(account.Email) == identifier {
			return cloneAccount(account), nil
		}
	}
	return types.Account{}, ErrNotFound
}

func (r *MemoryAccountRepository) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	r.mu.Lock()
	all := make([]types.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		all = append(all, cloneAccount(account))
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []types.Account{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(account)
}

func (r *MemoryAccountRepository) CreateFirst(ctx context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accounts) > 0 {
		return types.Account{}, ErrNotEmpty
	}
	return r.insertLocked(account)
}

func (r *MemoryAccountRepository) insertLocked(account types.Account) (types.Account, error) {
	if _, exists := r.accounts[account.ID]; exists {
		return types.Account{}, ErrDuplicate
	}
	username := strings.ToLower(account.Username)
	email := strings.ToLower(account.Email)
	for _, existing := range r.accounts {
		if strings.ToLower(existing.Username) == username || strings.ToLower(existing.Email) == email {
			return types.Account{}, ErrDuplicate
		}
	}

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.UpdatedAt = account.CreatedAt
	r.accounts[account.ID] = cloneAccount(account)
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy auth.LockoutPolicy) (auth.LockoutState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return auth.LockoutState{}, ErrNotFound
	}
	state := policy.Failure(auth.LockoutState{Attempts: account.LoginAttempts, LockUntil: account.LockUntil}, now)
	account.LoginAttempts = state.Attempts
	account.LockUntil = copyTime(state.LockUntil)
	account.UpdatedAt = now
	r.accounts[id] = account
	return state, nil
}

func (r *MemoryAccountRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return r.update(id, func(account *types.Account) {
		account.LoginAttempts = 0
		account.LockUntil = nil
		account.LastLogin = copyTime(&now)
		account.UpdatedAt = now
	})
}

func (r *MemoryAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(id, func(account *types.Account) {
		account.IsActive = active
		account.UpdatedAt = time.Now()
	})
}

func (r *MemoryAccountRepository) SetRole(ctx context.Context, id string, role types.Role, createdBy *string) error {
	return r.update(id, func(account *types.Account) {
		account.Role = role
		account.CreatedBy = copyString(createdBy)
		account.UpdatedAt = time.Now()
	})
}

func (r *MemoryAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(id, func(account *types.Account) {
		account.PasswordHash = passwordHash
		account.UpdatedAt = time.Now()
	})
}

func (r *MemoryAccountRepository) update(id string, fn func(account *types.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&account)
	r.accounts[id] = account
	return nil
}

func cloneAccount(a types.Account) types.Account {
	a.CreatedBy = copyString(a.CreatedBy)
	a.LockUntil = copyTime(a.LockUntil)
	a.LastLogin = copyTime(a.LastLogin)
	return a
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
