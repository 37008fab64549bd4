package tokenguard

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/jwt"
)

// Verify checks an access token and returns a tagged result. Expected
// rejections (malformed, expired, blacklisted, invalidated) are outcomes on
// [VerifyResult], never errors; callers branch on Reason.
//
// Verification is fail-closed: when the store cannot answer a marker lookup
// within the operation timeout, the result is VerifyStoreUnavailable and the
// token must not be accepted.
func (e *Engine) Verify(ctx context.Context, accessToken string) VerifyResult {
	if err := e.guard(); err != nil {
		return VerifyResult{Reason: VerifyStoreUnavailable}
	}

	start := time.Now()
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	keys, err := e.keys.VerificationKeys(ctx)
	if err != nil {
		result := VerifyResult{Reason: VerifyStoreUnavailable}
		e.observeVerify(ctx, result, time.Since(start))
		return result
	}

	outcome := flows.RunVerify(ctx, flows.VerifyDeps{
		ParseAccess: func(token string) (*jwt.AccessClaims, error) {
			return e.jwtManager.ParseAccess(token, keys)
		},
		Expired:      e.jwtManager.Expired,
		CheckMarkers: e.invalidation.CheckMarkers,
	}, accessToken)

	result := e.mapVerifyOutcome(outcome)
	e.observeVerify(ctx, result, time.Since(start))
	return result
}

func (e *Engine) mapVerifyOutcome(outcome flows.VerifyOutcome) VerifyResult {
	switch outcome.Kind {
	case flows.VerifyOK:
		return VerifyResult{Reason: VerifyOK, Claims: outcome.Claims}
	case flows.VerifyMalformed:
		return VerifyResult{Reason: VerifyMalformedOrUntrusted}
	case flows.VerifyExpired:
		return VerifyResult{Reason: VerifyExpired, Claims: outcome.Claims}
	case flows.VerifyBlacklisted:
		return VerifyResult{Reason: VerifyBlacklisted, Claims: outcome.Claims}
	case flows.VerifyGlobalInvalidated:
		return VerifyResult{Reason: VerifyGloballyInvalidated, Claims: outcome.Claims}
	case flows.VerifyUserInvalidated:
		return VerifyResult{Reason: VerifyUserInvalidated, Claims: outcome.Claims}
	default:
		return VerifyResult{Reason: VerifyStoreUnavailable, Claims: outcome.Claims}
	}
}

// observeVerify records metrics and reports the outcome to the audit sink.
// Every outcome is reported: routine rejections (malformed, expired) at Info,
// revoked credentials still in circulation and store outages at Warning.
func (e *Engine) observeVerify(ctx context.Context, result VerifyResult, elapsed time.Duration) {
	e.metrics.Observe(MetricVerifyLatency, elapsed)

	severity := internalaudit.SeverityInfo
	switch result.Reason {
	case VerifyOK:
		e.metrics.Inc(MetricVerifySuccess)
	case VerifyMalformedOrUntrusted:
		e.metrics.Inc(MetricVerifyMalformed)
	case VerifyExpired:
		e.metrics.Inc(MetricVerifyExpired)
	case VerifyBlacklisted:
		e.metrics.Inc(MetricVerifyBlacklisted)
		severity = internalaudit.SeverityWarning
	case VerifyGloballyInvalidated, VerifyUserInvalidated:
		e.metrics.Inc(MetricVerifyInvalidated)
		severity = internalaudit.SeverityWarning
	case VerifyStoreUnavailable:
		e.metrics.Inc(MetricVerifyStoreUnavailable)
		severity = internalaudit.SeverityWarning
	}

	event := AuditEvent{
		EventType: AuditEventVerify,
		Severity:  severity,
		TokenType: "access",
		Success:   result.Reason == VerifyOK,
	}
	if result.Reason != VerifyOK {
		event.EventType = AuditEventVerifyDenied
		event.Reason = result.Reason.String()
	}
	if result.Claims != nil {
		event.UserID = result.Claims.UserID()
		event.SessionID = result.Claims.SessionID
	}
	e.emitAudit(ctx, event)
}
