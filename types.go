package tokenguard

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenguard/internal/metrics"
	"github.com/MrEthical07/tokenguard/jwt"
)

// UserRecord is the point-in-time user snapshot copied into access-token
// claims at issuance. It is never refreshed until the next issuance.
type UserRecord struct {
	UserID        string
	TenantID      string
	Email         string
	EmailVerified bool
	MFAVerified   bool
	Roles         []string
}

// UserProvider is the interface callers implement to integrate tokenguard
// with their user database. It is consulted on issuance and refresh only —
// never during verification.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// TokenPair is returned by [Engine.IssuePair] and [Engine.Rotate].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	// ExpiresIn is the refresh-token lifetime in seconds.
	ExpiresIn int64
}

// VerifyReason classifies the outcome of [Engine.Verify].
type VerifyReason uint8

const (
	// VerifyOK is an exported constant or variable used by the token engine.
	VerifyOK VerifyReason = iota
	// VerifyMalformedOrUntrusted is an exported constant or variable used by the token engine.
	VerifyMalformedOrUntrusted
	// VerifyExpired is an exported constant or variable used by the token engine.
	VerifyExpired
	// VerifyBlacklisted is an exported constant or variable used by the token engine.
	VerifyBlacklisted
	// VerifyGloballyInvalidated is an exported constant or variable used by the token engine.
	VerifyGloballyInvalidated
	// VerifyUserInvalidated is an exported constant or variable used by the token engine.
	VerifyUserInvalidated
	// VerifyStoreUnavailable is an exported constant or variable used by the token engine.
	VerifyStoreUnavailable
)

// String describes the string operation and its observable behavior.
//
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r VerifyReason) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyMalformedOrUntrusted:
		return "malformed_or_untrusted"
	case VerifyExpired:
		return "expired"
	case VerifyBlacklisted:
		return "blacklisted"
	case VerifyGloballyInvalidated:
		return "globally_invalidated"
	case VerifyUserInvalidated:
		return "user_invalidated"
	case VerifyStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// VerifyResult is the tagged result of [Engine.Verify]. Verification never
// reports expected conditions as errors; callers branch on Reason.
type VerifyResult struct {
	Reason VerifyReason
	// Claims is populated when Reason is VerifyOK, and on invalidation
	// outcomes where the signature verified (so callers can log the subject).
	Claims *jwt.AccessClaims
}

// OK reports whether the token verified successfully.
func (r VerifyResult) OK() bool {
	return r.Reason == VerifyOK
}

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricIssueSuccess is an exported constant or variable used by the token engine.
	MetricIssueSuccess = MetricID(internalmetrics.MetricIssueSuccess)
	// MetricVerifySuccess is an exported constant or variable used by the token engine.
	MetricVerifySuccess = MetricID(internalmetrics.MetricVerifySuccess)
	// MetricVerifyMalformed is an exported constant or variable used by the token engine.
	MetricVerifyMalformed = MetricID(internalmetrics.MetricVerifyMalformed)
	// MetricVerifyExpired is an exported constant or variable used by the token engine.
	MetricVerifyExpired = MetricID(internalmetrics.MetricVerifyExpired)
	// MetricVerifyBlacklisted is an exported constant or variable used by the token engine.
	MetricVerifyBlacklisted = MetricID(internalmetrics.MetricVerifyBlacklisted)
	// MetricVerifyInvalidated is an exported constant or variable used by the token engine.
	MetricVerifyInvalidated = MetricID(internalmetrics.MetricVerifyInvalidated)
	// MetricVerifyStoreUnavailable is an exported constant or variable used by the token engine.
	MetricVerifyStoreUnavailable = MetricID(internalmetrics.MetricVerifyStoreUnavailable)
	// MetricRotateSuccess is an exported constant or variable used by the token engine.
	MetricRotateSuccess = MetricID(internalmetrics.MetricRotateSuccess)
	// MetricRotateFailure is an exported constant or variable used by the token engine.
	MetricRotateFailure = MetricID(internalmetrics.MetricRotateFailure)
	// MetricReuseDetected is an exported constant or variable used by the token engine.
	MetricReuseDetected = MetricID(internalmetrics.MetricReuseDetected)
	// MetricFamilyRevoked is an exported constant or variable used by the token engine.
	MetricFamilyRevoked = MetricID(internalmetrics.MetricFamilyRevoked)
	// MetricKeyRotation is an exported constant or variable used by the token engine.
	MetricKeyRotation = MetricID(internalmetrics.MetricKeyRotation)
	// MetricSessionCreated is an exported constant or variable used by the token engine.
	MetricSessionCreated = MetricID(internalmetrics.MetricSessionCreated)
	// MetricLogout is an exported constant or variable used by the token engine.
	MetricLogout = MetricID(internalmetrics.MetricLogout)
	// MetricBlacklist is an exported constant or variable used by the token engine.
	MetricBlacklist = MetricID(internalmetrics.MetricBlacklist)
	// MetricInvalidation is an exported constant or variable used by the token engine.
	MetricInvalidation = MetricID(internalmetrics.MetricInvalidation)
	// MetricVerifyLatency is an exported constant or variable used by the token engine.
	MetricVerifyLatency = MetricID(internalmetrics.MetricVerifyLatency)
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
