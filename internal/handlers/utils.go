package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
	"github.com/sirupsen/logrus"
)

const maxJSONBodyBytes = 1 << 20

type contextKey string

const contextAccountKey contextKey = "account"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	codeInvalidRequest          = "invalid_request"
	codeValidation              = "validation_error"
	codeInvalidCredentials      = "invalid_credentials"
	codeInvalidToken            = "invalid_token"
	codeUnauthorized            = "unauthorized"
	codeForbidden               = "forbidden"
	codeInsufficientPermissions = "insufficient_permissions"
	codeAccountLocked           = "account_locked"
	codeNotFound                = "not_found"
	codeConflict                = "conflict"
	codeNotImplemented          = "not_implemented"
	codeInternal                = "internal_error"
)

func withAccount(ctx context.Context, account types.Account) context.Context {
	return context.WithValue(ctx, contextAccountKey, account)
}

// accountFromContext returns the verified caller placed by RequireAuth or
// OptionalAuth, or nil for anonymous requests.
func accountFromContext(ctx context.Context) *types.Account {
	account, ok := ctx.Value(contextAccountKey).(types.Account)
	if !ok {
		return nil
	}
	return &account
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeServiceError maps service errors onto HTTP statuses. Anything not
// recognised is logged and reported as a 500 with the fallback message.
func writeServiceError(w http.ResponseWriter, logger logrus.FieldLogger, err error, fallback string) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Code:   codeValidation,
			Fields: validationErr.Fields,
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
	case errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "invalid token")
	case errors.Is(err, services.ErrAccountLocked):
		writeError(w, http.StatusLocked, codeAccountLocked, services.ErrAccountLocked.Error())
	case errors.Is(err, services.ErrInsufficientPermissions):
		writeError(w, http.StatusForbidden, codeInsufficientPermissions, "insufficient permissions")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, services.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, codeConflict, services.ErrDuplicateAccount.Error())
	case errors.Is(err, services.ErrStorageNotConfigured):
		writeError(w, http.StatusNotImplemented, codeNotImplemented, services.ErrStorageNotConfigured.Error())
	default:
		logger.WithError(err).Error(fallback)
		writeError(w, http.StatusInternalServerError, codeInternal, fallback)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(body).Decode(dst)
}

func parsePagination(r *http.Request, maxLimit int) (int, int, error) {
	page := 1
	limit := 0

	if value := strings.TrimSpace(r.URL.Query().Get("page")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 || parsed > services.MaxPage {
			return 0, 0, errors.New("invalid page")
		}
		page = parsed
	}

	limitValue := strings.TrimSpace(r.URL.Query().Get("limit"))
	if limitValue == "" {
		limitValue = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if limitValue != "" {
		parsed, err := strconv.Atoi(limitValue)
		if err != nil || parsed < 1 {
			return 0, 0, errors.New("invalid limit")
		}
		if parsed > maxLimit {
			parsed = maxLimit
		}
		limit = parsed
	}

	return page, limit, nil
}

func readFileLimited(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("file too large")
	}
	return data, nil
}
