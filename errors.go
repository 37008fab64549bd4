package tokenguard

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound is returned when the user provider has no record for an ID.
	ErrUserNotFound = errors.New("user not found")
	// ErrSigningKeyUnavailable is returned when no current signing key can be
	// obtained. This is fatal misconfiguration, not a transient denial.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
	// ErrRefreshUnknown is returned when a presented refresh token has no record.
	ErrRefreshUnknown = errors.New("refresh token unknown or expired")
	// ErrRefreshExpired is returned when the refresh record exists but its
	// lifetime has elapsed.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReuse is returned when an already-exchanged refresh token is
	// presented again. The token's whole family has been revoked; callers must
	// terminate the session, not retry.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshRevoked is returned when the refresh record was revoked by a
	// prior reuse event or administrative action.
	ErrRefreshRevoked = errors.New("refresh token revoked")
	// ErrStoreUnavailable wraps transport failures against the shared store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrSessionNotFound is returned when a session registry lookup misses.
	ErrSessionNotFound = errors.New("session not found")
	// ErrKeyRotationDisabled is returned by rotation operations when the
	// engine runs on the static key.
	ErrKeyRotationDisabled = errors.New("key rotation disabled")
	// ErrTokenInvalid is returned by operations that require a parseable access
	// token (for example blacklisting) when the token fails verification.
	ErrTokenInvalid = errors.New("invalid token")
)
