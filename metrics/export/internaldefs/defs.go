package internaldefs

import (
	tokenguard "github.com/MrEthical07/tokenguard"
)

// CounterDef defines a public type used by tokenguard APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokenguard APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token engine.
var CounterDefs = []CounterDef{
	{ID: tokenguard.MetricIssueSuccess, Name: "tokenguard_issue_success_total", Help: "Successful token pair issuances."},
	{ID: tokenguard.MetricVerifySuccess, Name: "tokenguard_verify_success_total", Help: "Successful access-token verifications."},
	{ID: tokenguard.MetricVerifyMalformed, Name: "tokenguard_verify_malformed_total", Help: "Verifications rejected as malformed or untrusted."},
	{ID: tokenguard.MetricVerifyExpired, Name: "tokenguard_verify_expired_total", Help: "Verifications rejected as expired."},
	{ID: tokenguard.MetricVerifyBlacklisted, Name: "tokenguard_verify_blacklisted_total", Help: "Verifications rejected by the blacklist."},
	{ID: tokenguard.MetricVerifyInvalidated, Name: "tokenguard_verify_invalidated_total", Help: "Verifications rejected by global or per-user invalidation."},
	{ID: tokenguard.MetricVerifyStoreUnavailable, Name: "tokenguard_verify_store_unavailable_total", Help: "Verifications failed closed because the store was unavailable."},
	{ID: tokenguard.MetricRotateSuccess, Name: "tokenguard_rotate_success_total", Help: "Successful refresh-token rotations."},
	{ID: tokenguard.MetricRotateFailure, Name: "tokenguard_rotate_failure_total", Help: "Failed refresh-token rotations."},
	{ID: tokenguard.MetricReuseDetected, Name: "tokenguard_refresh_reuse_detected_total", Help: "Detected refresh-token reuses."},
	{ID: tokenguard.MetricFamilyRevoked, Name: "tokenguard_family_revoked_total", Help: "Family-wide revocations triggered by reuse."},
	{ID: tokenguard.MetricKeyRotation, Name: "tokenguard_key_rotation_total", Help: "Signing-key rotations performed."},
	{ID: tokenguard.MetricSessionCreated, Name: "tokenguard_session_created_total", Help: "Created sessions."},
	{ID: tokenguard.MetricLogout, Name: "tokenguard_logout_total", Help: "Logout operations."},
	{ID: tokenguard.MetricBlacklist, Name: "tokenguard_blacklist_total", Help: "Single access-token blacklist operations."},
	{ID: tokenguard.MetricInvalidation, Name: "tokenguard_invalidation_total", Help: "Global and per-user invalidation operations."},
}

// HistogramDefs is an exported constant or variable used by the token engine.
var HistogramDefs = []HistogramDef{
	{ID: tokenguard.MetricVerifyLatency, Name: "tokenguard_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token engine.
var HistogramBounds = []string{
	"0.0005",
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the token engine.
var HistogramBoundSuffix = []string{
	"0_0005",
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_1",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
