package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
	"github.com/sirupsen/logrus"
)

// AuthHandler provides login, registration and account endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	logger   logrus.FieldLogger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, logger logrus.FieldLogger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{accounts: accounts, logger: logger}
}

// AuthRouter registers auth and account administration routes on the given
// router.
func AuthRouter(r chi.Router, accounts *services.AccountService, logger logrus.FieldLogger) {
	handler := NewAuthHandler(accounts, logger)
	requireAuth := RequireAuth(accounts, handler.logger)

	r.Post("/login", handler.Login)
	r.With(OptionalAuth(accounts, handler.logger)).Post("/register", handler.Register)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/verify", handler.Verify)
		r.Get("/me", handler.Me)
		r.Post("/password", handler.ChangePassword)
		r.Post("/create-admin", handler.CreateAdmin)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Use(requireAuth, RequireRole(types.RoleSuperAdmin))
		r.Get("/", handler.ListAccounts)
		r.Post("/{accountID}/activate", handler.Activate)
		r.Post("/{accountID}/deactivate", handler.Deactivate)
		r.Put("/{accountID}/role", handler.SetRole)
	})
}

// RequireAuth verifies the bearer token against the account store and
// injects the caller into the request context.
func RequireAuth(accounts *services.AccountService, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
				return
			}
			account, err := accounts.VerifyToken(r.Context(), tokenString)
			if err != nil {
				writeServiceError(w, logger, err, "failed to verify token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

// OptionalAuth behaves like RequireAuth when an Authorization header is
// present and lets anonymous requests through otherwise.
func OptionalAuth(accounts *services.AccountService, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	requireAuth := RequireAuth(accounts, logger)
	return func(next http.Handler) http.Handler {
		authenticated := requireAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			authenticated.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects callers below min. It must run after RequireAuth.
func RequireRole(min types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := accountFromContext(r.Context())
			if account == nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
				return
			}
			if err := auth.RequireRole(account.Role, min); err != nil {
				writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	identifier := req.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Username
	}
	if strings.TrimSpace(identifier) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "missing credentials")
		return
	}

	result, err := h.accounts.Login(r.Context(), identifier, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to authenticate")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Register creates an account. Without a bearer token only plain users can
// be registered, except for the very first account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	result, err := h.accounts.Register(r.Context(), req, accountFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to register account")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req services.AdminInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	account, err := h.accounts.CreateAdmin(r.Context(), accountFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create admin")
		return
	}
	writeJSON(w, http.StatusCreated, AccountResponse{Account: account.View()})
}

// Verify reports the account a valid token belongs to.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, Account: account.View()})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	writeJSON(w, http.StatusOK, account.View())
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	err := h.accounts.ChangePassword(r.Context(), accountFromContext(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 20
	}

	accounts, total, err := h.accounts.ListAccounts(r.Context(), accountFromContext(r.Context()), (page-1)*limit, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, AccountListResponse{
		Items: accounts,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *AuthHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	account, err := h.accounts.SetActive(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "accountID"), active)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account.View()})
}

func (h *AuthHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req SetRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	account, err := h.accounts.SetRole(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "accountID"), req.Role)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account.View()})
}

// LoginRequest accepts either "identifier" or the legacy "username" field;
// both match a username or an email.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

type AccountResponse struct {
	Account types.AccountView `json:"account"`
}

type VerifyResponse struct {
	Valid   bool              `json:"valid"`
	Account types.AccountView `json:"account"`
}

type AccountListResponse struct {
	Items []types.AccountView `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
