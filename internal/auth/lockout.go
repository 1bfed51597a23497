package auth

import "time"

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 2 * time.Hour
)

// LockoutState is the per-account failed-login bookkeeping.
type LockoutState struct {
	Attempts  int
	LockUntil *time.Time
}

// Locked reports whether the state rejects authentication at now.
func (s LockoutState) Locked(now time.Time) bool {
	return IsLocked(s.LockUntil, now)
}

// IsLocked reports whether lockUntil is set and still in the future.
func IsLocked(lockUntil *time.Time, now time.Time) bool {
	return lockUntil != nil && lockUntil.After(now)
}

// LockoutPolicy locks an account for LockDuration once MaxAttempts
// consecutive logins have failed. Lock expiry is derived from the timestamp;
// nothing sweeps expired locks.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy returns the 5 attempts / 2 hours policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  DefaultMaxLoginAttempts,
		LockDuration: DefaultLockDuration,
	}
}

// Failure returns the state after a failed login at now.
//
// A lock that has already expired restarts the count at 1. Otherwise the
// count is incremented and, if it reaches MaxAttempts while unlocked, the
// account is locked until now+LockDuration. Persistent stores must apply the
// same transition as a single conditional update.
func (p LockoutPolicy) Failure(s LockoutState, now time.Time) LockoutState {
	if s.LockUntil != nil && !s.LockUntil.After(now) {
		return LockoutState{Attempts: 1}
	}

	next := LockoutState{Attempts: s.Attempts + 1, LockUntil: s.LockUntil}
	if next.Attempts >= p.MaxAttempts && !s.Locked(now) {
		until := now.Add(p.LockDuration)
		next.LockUntil = &until
	}
	return next
}

// Success returns the state after a successful login.
func (p LockoutPolicy) Success() LockoutState {
	return LockoutState{}
}
