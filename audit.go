package tokenguard

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
)

// Audit event types emitted by the engine. Consumers should treat unknown
// types as forward compatibility, not errors.
const (
	// AuditEventIssue is an exported constant or variable used by the token engine.
	AuditEventIssue = "token_issue"
	// AuditEventVerify is an exported constant or variable used by the token engine.
	AuditEventVerify = "token_verify"
	// AuditEventVerifyDenied is an exported constant or variable used by the token engine.
	AuditEventVerifyDenied = "token_verify_denied"
	// AuditEventRotate is an exported constant or variable used by the token engine.
	AuditEventRotate = "token_rotate"
	// AuditEventReuseDetected is an exported constant or variable used by the token engine.
	AuditEventReuseDetected = "refresh_reuse_detected"
	// AuditEventFamilyRevoked is an exported constant or variable used by the token engine.
	AuditEventFamilyRevoked = "refresh_family_revoked"
	// AuditEventLogout is an exported constant or variable used by the token engine.
	AuditEventLogout = "logout"
	// AuditEventBlacklist is an exported constant or variable used by the token engine.
	AuditEventBlacklist = "token_blacklisted"
	// AuditEventUserInvalidation is an exported constant or variable used by the token engine.
	AuditEventUserInvalidation = "user_tokens_invalidated"
	// AuditEventGlobalInvalidation is an exported constant or variable used by the token engine.
	AuditEventGlobalInvalidation = "global_tokens_invalidated"
	// AuditEventKeyRotation is an exported constant or variable used by the token engine.
	AuditEventKeyRotation = "signing_key_rotated"
)

// Severity levels re-exported for sink implementations.
const (
	// SeverityInfo is an exported constant or variable used by the token engine.
	SeverityInfo = internalaudit.SeverityInfo
	// SeverityWarning is an exported constant or variable used by the token engine.
	SeverityWarning = internalaudit.SeverityWarning
	// SeverityCritical is an exported constant or variable used by the token engine.
	SeverityCritical = internalaudit.SeverityCritical
)

// emitAudit stamps the event with time and caller provenance and hands it to
// the dispatcher. Safe on a nil dispatcher.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	event.Timestamp = time.Now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}
