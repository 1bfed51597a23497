package auth

import (
	"errors"

	"github.com/newsdesk/apiserver/types"
)

// ErrForbidden is returned when a caller's role is below the one required.
var ErrForbidden = errors.New("forbidden")

// RequireRole passes iff role grants at least min.
func RequireRole(role, min types.Role) error {
	if !role.AtLeast(min) {
		return ErrForbidden
	}
	return nil
}

// RequireAdmin passes for admin and super_admin.
func RequireAdmin(role types.Role) error {
	return RequireRole(role, types.RoleAdmin)
}

// RequireSuperAdmin passes for super_admin only.
func RequireSuperAdmin(role types.Role) error {
	return RequireRole(role, types.RoleSuperAdmin)
}
