package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/tokenguard/internal"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/stores"
)

// Rotate exchanges a live refresh token for a new token pair. The presented
// token is consumed atomically: of any number of concurrent Rotate calls with
// the same token, exactly one succeeds and the rest fail with
// [ErrRefreshReuse].
//
// Presenting an already-consumed token is treated as credential theft. The
// entire rotation family is revoked before the error is returned, so neither
// the legitimate client nor the thief can continue the session.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := e.guard(); err != nil {
		return TokenPair{}, err
	}
	if err := internal.ValidateOpaqueToken(refreshToken); err != nil {
		// Wrong shape means we never minted it; skip the store round-trip.
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, ErrRefreshUnknown
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	result := flows.RunRotate(ctx, flows.RotateDeps{
		NewRefreshToken: internal.NewOpaqueToken,
		Consume:         e.refresh.Consume,
		RevokeFamily:    e.refresh.RevokeFamily,
	}, refreshToken)

	switch result.Failure {
	case flows.RotateOK:
		return e.completeRotation(ctx, result)

	case flows.RotateFailureUnknown:
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, ErrRefreshUnknown

	case flows.RotateFailureExpired:
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, ErrRefreshExpired

	case flows.RotateFailureReuse:
		e.onReuseDetected(ctx, result)
		return TokenPair{}, ErrRefreshReuse

	case flows.RotateFailureRevoked:
		e.metrics.Inc(MetricRotateFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditEventRotate,
			Severity:  internalaudit.SeverityWarning,
			UserID:    recordUserID(result.Record),
			SessionID: recordSessionID(result.Record),
			FamilyID:  recordFamilyID(result.Record),
			TokenType: "refresh",
			Reason:    "revoked",
		})
		return TokenPair{}, ErrRefreshRevoked

	default:
		e.metrics.Inc(MetricRotateFailure)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
	}
}

// completeRotation persists the successor refresh token and issues the new
// access token. The successor inherits the consumed record's user, family and
// session.
func (e *Engine) completeRotation(ctx context.Context, result flows.RotateResult) (TokenPair, error) {
	consumed := result.Record
	now := time.Now()

	user, err := e.provider.GetUserByID(ctx, consumed.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The account vanished mid-session. Kill the family so the
			// orphaned successor reference cannot be completed later.
			_, _ = e.refresh.RevokeFamily(ctx, consumed.FamilyID)
			_ = e.sessions.Delete(ctx, consumed.SessionID)
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, fmt.Errorf("user provider: %w", err)
	}

	access, claims, err := e.signAccess(ctx, user, consumed.SessionID)
	if err != nil {
		return TokenPair{}, err
	}

	record := &stores.RefreshRecord{
		UserID:    consumed.UserID,
		FamilyID:  consumed.FamilyID,
		SessionID: consumed.SessionID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(e.cfg.Refresh.RefreshTTL).UnixMilli(),
	}
	if err := e.refresh.Save(ctx, result.NextToken, record, e.cfg.Refresh.RefreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Best effort: an active session keeps pace with its newest token.
	_ = e.sessions.Touch(ctx, consumed.SessionID, e.cfg.Refresh.RefreshTTL)

	if err := e.invalidation.MarkIssued(ctx, claims.JTI(), e.cfg.JWT.AccessTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricRotateSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventRotate,
		Severity:  internalaudit.SeverityInfo,
		UserID:    consumed.UserID,
		SessionID: consumed.SessionID,
		FamilyID:  consumed.FamilyID,
		TokenType: "refresh",
		Success:   true,
	})

	return TokenPair{
		AccessToken:  access,
		RefreshToken: result.NextToken,
		SessionID:    consumed.SessionID,
		ExpiresIn:    int64(e.cfg.Refresh.RefreshTTL.Seconds()),
	}, nil
}

// onReuseDetected records the security incident after the flow has already
// revoked the family. The session dies with the family.
func (e *Engine) onReuseDetected(ctx context.Context, result flows.RotateResult) {
	e.metrics.Inc(MetricRotateFailure)
	e.metrics.Inc(MetricReuseDetected)
	if result.RevokedCount > 0 {
		e.metrics.Inc(MetricFamilyRevoked)
	}

	if result.Record != nil && result.Record.SessionID != "" {
		_ = e.sessions.Delete(ctx, result.Record.SessionID)
	}

	metadata := map[string]string{
		"revoked_tokens": strconv.Itoa(result.RevokedCount),
	}
	if result.RevokeErr != nil {
		// The family is still live. Responders must know the automated
		// revocation did not land.
		metadata["revocation_error"] = result.RevokeErr.Error()
	}
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventReuseDetected,
		Severity:  internalaudit.SeverityCritical,
		UserID:    recordUserID(result.Record),
		SessionID: recordSessionID(result.Record),
		FamilyID:  recordFamilyID(result.Record),
		TokenType: "refresh",
		Reason:    "replayed refresh token",
		Metadata:  metadata,
	})
	if result.RevokedCount > 0 {
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditEventFamilyRevoked,
			Severity:  internalaudit.SeverityCritical,
			UserID:    recordUserID(result.Record),
			FamilyID:  recordFamilyID(result.Record),
			TokenType: "refresh",
			Success:   true,
		})
	}
}

func recordUserID(r *stores.RefreshRecord) string {
	if r == nil {
		return ""
	}
	return r.UserID
}

func recordSessionID(r *stores.RefreshRecord) string {
	if r == nil {
		return ""
	}
	return r.SessionID
}

func recordFamilyID(r *stores.RefreshRecord) string {
	if r == nil {
		return ""
	}
	return r.FamilyID
}
