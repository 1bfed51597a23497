package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("editor123")
	require.NoError(t, err)
	assert.NotEqual(t, "editor123", hash)
	assert.True(t, h.Compare("editor123", hash))
	assert.False(t, h.Compare("editor124", hash))
	assert.False(t, h.Compare("", hash))

	again, err := h.Hash("editor123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "each hash uses a fresh salt")
}

func TestPasswordHasher_EmptyOrMalformedHash(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.Compare("anything", ""))
	assert.False(t, h.Compare("anything", "not-a-bcrypt-hash"))
}

func TestPasswordHasher_TooLong(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	_, err := h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewPasswordHasher_Cost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(1).cost)
	assert.Equal(t, bcrypt.MaxCost, NewPasswordHasher(99).cost)

	hash, err := NewPasswordHasher(bcrypt.MinCost).Hash("pw1234")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestLockoutPolicy_LocksAtThreshold(t *testing.T) {
	t.Parallel()

	p := DefaultLockoutPolicy()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var s LockoutState
	for i := 1; i <= 4; i++ {
		s = p.Failure(s, now)
		assert.Equal(t, i, s.Attempts)
		assert.False(t, s.Locked(now))
	}

	s = p.Failure(s, now)
	assert.Equal(t, 5, s.Attempts)
	require.NotNil(t, s.LockUntil)
	assert.Equal(t, now.Add(2*time.Hour), *s.LockUntil)
	assert.True(t, s.Locked(now.Add(time.Hour)))
}

func TestLockoutPolicy_FailureWhileLockedKeepsWindow(t *testing.T) {
	t.Parallel()

	p := DefaultLockoutPolicy()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	s := p.Failure(LockoutState{Attempts: 5, LockUntil: &until}, now)
	assert.Equal(t, 6, s.Attempts)
	require.NotNil(t, s.LockUntil)
	assert.Equal(t, until, *s.LockUntil)
}

func TestLockoutPolicy_StaleLockRestartsCount(t *testing.T) {
	t.Parallel()

	p := DefaultLockoutPolicy()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)

	s := p.Failure(LockoutState{Attempts: 5, LockUntil: &expired}, now)
	assert.Equal(t, 1, s.Attempts)
	assert.Nil(t, s.LockUntil)
	assert.False(t, s.Locked(now))
}

func TestLockoutPolicy_Success(t *testing.T) {
	t.Parallel()

	s := DefaultLockoutPolicy().Success()
	assert.Zero(t, s.Attempts)
	assert.Nil(t, s.LockUntil)
}

func TestIsLocked(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, IsLocked(nil, now))
	assert.False(t, IsLocked(&past, now))
	assert.False(t, IsLocked(&now, now))
	assert.True(t, IsLocked(&future, now))
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	assert.NoError(t, RequireAdmin(types.RoleAdmin))
	assert.NoError(t, RequireAdmin(types.RoleSuperAdmin))
	assert.ErrorIs(t, RequireAdmin(types.RoleUser), ErrForbidden)
	assert.ErrorIs(t, RequireAdmin(types.Role("")), ErrForbidden)

	assert.NoError(t, RequireSuperAdmin(types.RoleSuperAdmin))
	assert.ErrorIs(t, RequireSuperAdmin(types.RoleAdmin), ErrForbidden)
	assert.ErrorIs(t, RequireSuperAdmin(types.RoleUser), ErrForbidden)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("super-secret", 0)

	tok, err := svc.Issue("acc-123")
	require.NoError(t, err)

	got, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc-123", got)
}

func TestTokenService_NoRoleClaim(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("k", time.Hour)
	tok, err := svc.Issue("acc-1")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	require.NoError(t, err)
	assert.NotContains(t, claims, "role")
	assert.Equal(t, "acc-1", claims["sub"])
}

func TestTokenService_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-8 * 24 * time.Hour)
	issuer := NewTokenService("k", 0).WithClock(func() time.Time { return issuedAt })
	tok, err := issuer.Issue("acc-1")
	require.NoError(t, err)

	_, err = NewTokenService("k", 0).Verify(tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenService_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewTokenService("right", 0).Issue("acc-1")
	require.NoError(t, err)

	_, err = NewTokenService("wrong", 0).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Malformed(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService("k", 0).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := jwt.RegisteredClaims{
		Subject:   "acc-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenService("k", 0).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_MissingSubject(t *testing.T) {
	t.Parallel()

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewTokenService("k", 0).Verify(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenService_IssueRequiresID(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService("k", 0).Issue("  ")
	assert.Error(t, err)
}
