package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/internal/events"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultAccountLimit = 20
	maxAccountLimit     = 100
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Count(ctx context.Context) (int, error)
	CreateFirst(ctx context.Context, account types.Account) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	GetByID(ctx context.Context, id string) (types.Account, error)
	FindActiveByIdentifier(ctx context.Context, identifier string) (types.Account, error)
	List(ctx context.Context, offset, limit int) ([]types.Account, int, error)
	RecordLoginFailure(ctx context.Context, id string, now time.Time, policy auth.LockoutPolicy) (auth.LockoutState, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role types.Role, createdBy *string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Username string     `json:"username" validate:"required,min=3,max=30,username"`
	Email    string     `json:"email" validate:"required,email,max=254"`
	Password string     `json:"password" validate:"required,min=6,max=72"`
	Role     types.Role `json:"role,omitempty" validate:"omitempty,oneof=user admin super_admin"`
}

// AdminInput is the payload for creating an admin account.
type AdminInput struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type passwordInput struct {
	Password string `json:"new_password" validate:"required,min=6,max=72"`
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	Account types.AccountView `json:"account"`
	Token   string            `json:"token"`
}

// AccountService encapsulates authentication and account administration.
type AccountService struct {
	repo    AccountRepository
	hasher  auth.PasswordHasher
	lockout auth.LockoutPolicy
	tokens  *auth.TokenService
	events  *events.Publisher
	logger  logrus.FieldLogger
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(
	repo AccountRepository,
	tokens *auth.TokenService,
	hasher auth.PasswordHasher,
	lockout auth.LockoutPolicy,
	publisher *events.Publisher,
	logger logrus.FieldLogger,
) *AccountService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccountService{
		repo:    repo,
		hasher:  hasher,
		lockout: lockout,
		tokens:  tokens,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
	}
}

// FindByCredentials authenticates identifier (username or email) and
// password. When requiredRole is set the account must hold at least that
// role. Failed comparisons count towards the lockout threshold.
func (s *AccountService) FindByCredentials(ctx context.Context, identifier, password string, requiredRole types.Role) (types.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return types.Account{}, ErrInvalidCredentials
	}

	account, err := s.repo.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Keep the response time close to that of a wrong password.
			s.hasher.Compare(password, s.dummy())
			return types.Account{}, ErrInvalidCredentials
		}
		return types.Account{}, fmt.Errorf("find account: %w", err)
	}

	if requiredRole != "" && !account.Role.AtLeast(requiredRole) {
		return types.Account{}, ErrInsufficientPermissions
	}

	now := s.now()
	if auth.IsLocked(account.LockUntil, now) {
		return types.Account{}, ErrAccountLocked
	}

	if !s.hasher.Compare(password, account.PasswordHash) {
		state, err := s.repo.RecordLoginFailure(ctx, account.ID, now, s.lockout)
		if err != nil {
			return types.Account{}, fmt.Errorf("record login failure: %w", err)
		}
		if state.Locked(now) {
			s.logger.WithFields(logrus.Fields{
				"account_id": account.ID,
				"attempts":   state.Attempts,
				"lock_until": state.LockUntil,
			}).Warn("account locked after repeated login failures")
			s.events.Publish(ctx, events.AccountLocked, account.ID, "", map[string]string{
				"attempts":   fmt.Sprint(state.Attempts),
				"lock_until": state.LockUntil.UTC().Format(time.RFC3339),
			})
		}
		return types.Account{}, ErrInvalidCredentials
	}

	if err := s.repo.RecordLoginSuccess(ctx, account.ID, now); err != nil {
		return types.Account{}, fmt.Errorf("record login success: %w", err)
	}
	account.LoginAttempts = 0
	account.LockUntil = nil
	account.LastLogin = &now
	return account, nil
}

// Login authenticates and issues a token.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (AuthResult, error) {
	account, err := s.FindByCredentials(ctx, identifier, password, "")
	if err != nil {
		return AuthResult{}, err
	}
	return s.authResult(account)
}

// VerifyToken resolves a bearer token to its live account. Tokens for
// missing or deactivated accounts are rejected.
func (s *AccountService) VerifyToken(ctx context.Context, token string) (types.Account, error) {
	accountID, err := s.tokens.Verify(token)
	if err != nil {
		return types.Account{}, err
	}
	if _, err := uuid.Parse(accountID); err != nil {
		return types.Account{}, ErrInvalidToken
	}
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrInvalidToken
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return types.Account{}, ErrInvalidToken
	}
	return account, nil
}

// Register creates an account and issues a token for it.
//
// The first account in an empty store is always super_admin. After that,
// anonymous callers and non super_admin callers may only register users.
func (s *AccountService) Register(ctx context.Context, input RegisterInput, caller *types.Account) (AuthResult, error) {
	input.Username = normalizeIdentity(input.Username)
	input.Email = normalizeIdentity(input.Email)
	input.Role = types.Role(normalizeIdentity(string(input.Role)))
	if err := validateStruct(input); err != nil {
		return AuthResult{}, err
	}

	role := input.Role
	if role == "" {
		role = types.RoleUser
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return AuthResult{}, fmt.Errorf("count accounts: %w", err)
	}
	if total > 0 && role != types.RoleUser {
		if caller == nil {
			return AuthResult{}, ErrForbidden
		}
		if err := auth.RequireSuperAdmin(caller.Role); err != nil {
			return AuthResult{}, err
		}
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}
	account := types.Account{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if total == 0 {
		bootstrap := account
		bootstrap.Role = types.RoleSuperAdmin
		created, err := s.repo.CreateFirst(ctx, bootstrap)
		switch {
		case err == nil:
			s.logger.WithField("account_id", created.ID).Info("bootstrap super admin registered")
			s.events.Publish(ctx, events.AccountRegistered, created.ID, "", map[string]string{"role": string(created.Role)})
			return s.authResult(created)
		case errors.Is(err, store.ErrNotEmpty):
			// Lost the bootstrap race. Fall through to the normal rules.
			if role != types.RoleUser && (caller == nil || caller.Role != types.RoleSuperAdmin) {
				return AuthResult{}, ErrForbidden
			}
		default:
			return AuthResult{}, s.createError(err)
		}
	}

	actor := ""
	if role == types.RoleAdmin {
		account.CreatedBy = &caller.ID
		actor = caller.ID
	}
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return AuthResult{}, s.createError(err)
	}

	eventType := events.AccountRegistered
	if role == types.RoleAdmin {
		eventType = events.AccountAdminCreated
	}
	s.events.Publish(ctx, eventType, created.ID, actor, map[string]string{"role": string(created.Role)})
	return s.authResult(created)
}

// CreateAdmin creates an admin account on behalf of a super_admin caller.
func (s *AccountService) CreateAdmin(ctx context.Context, caller *types.Account, input AdminInput) (types.Account, error) {
	if caller == nil {
		return types.Account{}, ErrForbidden
	}
	if err := auth.RequireSuperAdmin(caller.Role); err != nil {
		return types.Account{}, err
	}

	input.Username = normalizeIdentity(input.Username)
	input.Email = normalizeIdentity(input.Email)
	if err := validateStruct(input); err != nil {
		return types.Account{}, err
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return types.Account{}, err
	}
	createdBy := caller.ID
	created, err := s.repo.Create(ctx, types.Account{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         types.RoleAdmin,
		IsActive:     true,
		CreatedBy:    &createdBy,
	})
	if err != nil {
		return types.Account{}, s.createError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": created.ID,
		"created_by": caller.ID,
	}).Info("admin account created")
	s.events.Publish(ctx, events.AccountAdminCreated, created.ID, caller.ID, map[string]string{"role": string(created.Role)})
	return created, nil
}

// Bootstrap creates the initial super_admin from the command line. It fails
// with ErrAlreadyBootstrapped once any account exists.
func (s *AccountService) Bootstrap(ctx context.Context, input AdminInput) (types.Account, error) {
	input.Username = normalizeIdentity(input.Username)
	input.Email = normalizeIdentity(input.Email)
	if err := validateStruct(input); err != nil {
		return types.Account{}, err
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return types.Account{}, err
	}
	created, err := s.repo.CreateFirst(ctx, types.Account{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         types.RoleSuperAdmin,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotEmpty) {
			return types.Account{}, ErrAlreadyBootstrapped
		}
		return types.Account{}, s.createError(err)
	}

	s.logger.WithField("account_id", created.ID).Info("bootstrap super admin created")
	s.events.Publish(ctx, events.AccountRegistered, created.ID, "", map[string]string{"role": string(created.Role)})
	return created, nil
}

// ListAccounts pages through all accounts. super_admin only.
func (s *AccountService) ListAccounts(ctx context.Context, caller *types.Account, offset, limit int) ([]types.AccountView, int, error) {
	if err := requireCaller(caller, types.RoleSuperAdmin); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = defaultAccountLimit
	}
	if limit > maxAccountLimit {
		limit = maxAccountLimit
	}

	accounts, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	views := make([]types.AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, account.View())
	}
	return views, total, nil
}

// SetActive enables or disables an account. Disabled accounts cannot log in
// and their outstanding tokens stop verifying. super_admin only.
func (s *AccountService) SetActive(ctx context.Context, caller *types.Account, id string, active bool) (types.Account, error) {
	if err := requireCaller(caller, types.RoleSuperAdmin); err != nil {
		return types.Account{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return types.Account{}, ErrNotFound
	}
	if id == caller.ID && !active {
		return types.Account{}, fmt.Errorf("%w: cannot deactivate your own account", ErrForbidden)
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return types.Account{}, wrapNotFound(err, "set account status")
	}

	eventType := events.AccountDeactivated
	if active {
		eventType = events.AccountActivated
	}
	s.events.Publish(ctx, eventType, id, caller.ID, nil)
	return s.get(ctx, id)
}

// SetRole changes an account's role. Promoting to admin records the caller
// as creator. super_admin only, and never on the caller itself.
func (s *AccountService) SetRole(ctx context.Context, caller *types.Account, id string, roleName string) (types.Account, error) {
	if err := requireCaller(caller, types.RoleSuperAdmin); err != nil {
		return types.Account{}, err
	}
	role, ok := types.ParseRole(roleName)
	if !ok {
		return types.Account{}, newValidationError("role", "must be one of [user admin super_admin]")
	}
	if _, err := uuid.Parse(id); err != nil {
		return types.Account{}, ErrNotFound
	}
	if id == caller.ID {
		return types.Account{}, fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}

	var createdBy *string
	if role == types.RoleAdmin {
		createdBy = &caller.ID
	}
	if err := s.repo.SetRole(ctx, id, role, createdBy); err != nil {
		return types.Account{}, wrapNotFound(err, "set account role")
	}

	s.events.Publish(ctx, events.AccountRoleChanged, id, caller.ID, map[string]string{"role": string(role)})
	return s.get(ctx, id)
}

// ChangePassword replaces the caller's own password after checking the
// current one.
func (s *AccountService) ChangePassword(ctx context.Context, caller *types.Account, currentPassword, newPassword string) error {
	if caller == nil {
		return ErrForbidden
	}
	if err := validateStruct(passwordInput{Password: newPassword}); err != nil {
		return err
	}

	account, err := s.repo.GetByID(ctx, caller.ID)
	if err != nil {
		return wrapNotFound(err, "load account")
	}
	if !s.hasher.Compare(currentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, account.ID, hash); err != nil {
		return wrapNotFound(err, "update password")
	}

	s.events.Publish(ctx, events.AccountPasswordChanged, account.ID, account.ID, nil)
	return nil
}

// HashPassword exposes the configured hasher.
func (s *AccountService) HashPassword(password string) (string, error) {
	return s.hashPassword(password)
}

// ComparePassword reports whether password matches hash.
func (s *AccountService) ComparePassword(password, hash string) bool {
	return s.hasher.Compare(password, hash)
}

func (s *AccountService) get(ctx context.Context, id string) (types.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, wrapNotFound(err, "load account")
	}
	return account, nil
}

func (s *AccountService) authResult(account types.Account) (AuthResult, error) {
	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Account: account.View(), Token: token}, nil
}

func (s *AccountService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", newValidationError("password", "must not exceed 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *AccountService) createError(err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return ErrDuplicateAccount
	}
	return fmt.Errorf("create account: %w", err)
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("newsdesk-timing-equalizer")
	})
	return s.dummyHash
}

func requireCaller(caller *types.Account, min types.Role) error {
	if caller == nil {
		return ErrForbidden
	}
	return auth.RequireRole(caller.Role, min)
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
