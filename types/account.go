package types

import (
	"strings"
	"time"
)

// Role is an account's privilege tier. Roles are totally ordered:
// RoleUser < RoleAdmin < RoleSuperAdmin.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// rank returns the position of the role in the hierarchy, or 0 for an
// unknown role.
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants every privilege of min. A super admin
// satisfies any requirement; an unknown r satisfies none.
func (r Role) AtLeast(min Role) bool {
	if r == RoleSuperAdmin {
		return true
	}
	return r.Valid() && min.Valid() && r.rank() >= min.rank()
}

// ParseRole normalizes a role name. The second result is false for
// unknown roles.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.Valid()
}

// Account is an administrative identity for the newsroom.
// It contains identity, role, lockout state, and audit metadata.
type Account struct {
	// ID is the opaque unique identifier of the account.
	ID string `json:"id" db:"id" bson:"_id"`

	// Username is the unique, lowercase login name.
	Username string `json:"username" db:"username" bson:"username"`

	// Email is the unique, lowercase email address.
	Email string `json:"email" db:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the account password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash" bson:"password_hash"`

	// Role is the privilege tier of the account.
	Role Role `json:"role" db:"role" bson:"role"`

	// IsActive is false for disabled accounts, which cannot authenticate.
	IsActive bool `json:"is_active" db:"is_active" bson:"is_active"`

	// CreatedBy references the super admin that created an admin account.
	CreatedBy *string `json:"created_by,omitempty" db:"created_by" bson:"created_by,omitempty"`

	// LoginAttempts counts consecutive failed logins.
	LoginAttempts int `json:"-" db:"login_attempts" bson:"login_attempts"`

	// LockUntil is set while the account is locked out.
	LockUntil *time.Time `json:"-" db:"lock_until" bson:"lock_until,omitempty"`

	// LastLogin is the time of the most recent successful login.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login" bson:"last_login,omitempty"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// AccountView is the public representation of an account. It never carries
// the password hash or lockout counters.
type AccountView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedBy *string    `json:"created_by,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// View returns the public representation of the account.
func (a Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedBy: a.CreatedBy,
		LastLogin: a.LastLogin,
		CreatedAt: a.CreatedAt,
	}
}
