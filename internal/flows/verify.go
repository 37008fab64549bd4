package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenguard/internal/stores"
	"github.com/MrEthical07/tokenguard/jwt"
)

// VerifyKind tags the outcome of access-token verification. Expected
// rejections are outcomes, not errors; only infrastructure trouble surfaces
// through VerifyOutcome.Err.
type VerifyKind uint8

const (
	VerifyOK VerifyKind = iota
	VerifyMalformed
	VerifyExpired
	VerifyBlacklisted
	VerifyGlobalInvalidated
	VerifyUserInvalidated
	VerifyStoreUnavailable
)

// VerifyDeps are the operations verification needs, in the order it uses
// them.
type VerifyDeps struct {
	ParseAccess  func(token string) (*jwt.AccessClaims, error)
	Expired      func(claims *jwt.AccessClaims, now time.Time) bool
	CheckMarkers func(ctx context.Context, jti, userID string) (stores.Markers, error)
}

// VerifyOutcome is the result of one verification. Claims are populated for
// every outcome past the signature check, so callers can log who presented an
// expired or revoked token.
type VerifyOutcome struct {
	Kind   VerifyKind
	Claims *jwt.AccessClaims
	Err    error
}

// RunVerify checks a token in fixed order: signature, expiry, blacklist,
// global invalidation, user invalidation. The order is part of the contract —
// a forged token must never learn whether its jti is blacklisted, and an
// expired genuine token is reported as expired even if it is also
// blacklisted.
//
// Marker lookups that fail surface as VerifyStoreUnavailable: when the store
// cannot answer, the token is not accepted.
func RunVerify(ctx context.Context, deps VerifyDeps, token string) VerifyOutcome {
	claims, err := deps.ParseAccess(token)
	if err != nil {
		return VerifyOutcome{Kind: VerifyMalformed, Err: err}
	}

	now := time.Now()
	if deps.Expired(claims, now) {
		return VerifyOutcome{Kind: VerifyExpired, Claims: claims}
	}

	markers, err := deps.CheckMarkers(ctx, claims.JTI(), claims.UserID())
	if err != nil {
		return VerifyOutcome{Kind: VerifyStoreUnavailable, Claims: claims, Err: err}
	}

	if markers.Blacklisted {
		return VerifyOutcome{Kind: VerifyBlacklisted, Claims: claims}
	}

	issuedAt := now
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	if markers.GlobalSet && issuedAt.Before(markers.GlobalAt) {
		return VerifyOutcome{Kind: VerifyGlobalInvalidated, Claims: claims}
	}
	if markers.UserSet && issuedAt.Before(markers.UserAt) {
		return VerifyOutcome{Kind: VerifyUserInvalidated, Claims: claims}
	}

	return VerifyOutcome{Kind: VerifyOK, Claims: claims}
}
