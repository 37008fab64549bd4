package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/internal"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/stores"
)

// Logout terminates the session behind a refresh token: the whole rotation
// family is revoked and the session record deleted. Presenting a token that
// was already consumed still logs out the session it belonged to.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := internal.ValidateOpaqueToken(refreshToken); err != nil {
		return ErrRefreshUnknown
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	record, err := e.refresh.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, stores.ErrRefreshRecordNotFound) {
			return ErrRefreshUnknown
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.refresh.RevokeFamily(ctx, record.FamilyID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.sessions.Delete(ctx, record.SessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventLogout,
		Severity:  internalaudit.SeverityInfo,
		UserID:    record.UserID,
		SessionID: record.SessionID,
		FamilyID:  record.FamilyID,
		Success:   true,
	})
	return nil
}

// BlacklistAccessToken revokes a single access token for its remaining
// lifetime. The token must carry a valid signature; revoking garbage is
// refused with [ErrTokenInvalid] so callers notice misuse.
func (e *Engine) BlacklistAccessToken(ctx context.Context, accessToken string) error {
	if err := e.guard(); err != nil {
		return err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	keys, err := e.keys.VerificationKeys(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	claims, err := e.jwtManager.ParseAccess(accessToken, keys)
	if err != nil {
		return ErrTokenInvalid
	}

	remaining := e.jwtManager.RemainingLifetime(claims, time.Now())
	if remaining <= 0 {
		// Already expired; nothing to revoke.
		return nil
	}

	if err := e.invalidation.Blacklist(ctx, claims.JTI(), remaining+e.cfg.JWT.Leeway); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricBlacklist)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventBlacklist,
		Severity:  internalaudit.SeverityWarning,
		UserID:    claims.UserID(),
		SessionID: claims.SessionID,
		TokenType: "access",
		Success:   true,
	})
	return nil
}

// InvalidateUserTokens invalidates every access token of one user issued
// before now. The marker persists for thirty days, which exceeds any sane
// access-token lifetime by orders of magnitude.
func (e *Engine) InvalidateUserTokens(ctx context.Context, userID string) error {
	if err := e.guard(); err != nil {
		return err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if err := e.invalidation.SetUserInvalidation(ctx, userID, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricInvalidation)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventUserInvalidation,
		Severity:  internalaudit.SeverityWarning,
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// InvalidateAllTokens invalidates every access token issued before now,
// service-wide. This is the kill switch for key compromise.
func (e *Engine) InvalidateAllTokens(ctx context.Context) error {
	if err := e.guard(); err != nil {
		return err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if err := e.invalidation.SetGlobalInvalidation(ctx, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricInvalidation)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventGlobalInvalidation,
		Severity:  internalaudit.SeverityCritical,
		Success:   true,
	})
	return nil
}
