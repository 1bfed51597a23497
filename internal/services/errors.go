package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/internal/store"
)

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAccountLocked           = errors.New("account is temporarily locked due to too many failed login attempts")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrForbidden               = auth.ErrForbidden
	ErrInvalidToken            = auth.ErrInvalidToken
	ErrDuplicateAccount        = errors.New("username or email already exists")
	ErrNotFound                = store.ErrNotFound
	ErrStorageNotConfigured    = errors.New("object storage is not configured")
	ErrAlreadyBootstrapped     = errors.New("accounts already exist")
)

// ValidationError reports malformed input, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
