// Package tokenguard provides the token-lifecycle core of an authentication
// service: short-lived signed JWT access tokens, rotating opaque refresh tokens
// with theft/reuse detection, and rolling rotation of the symmetric signing key
// material, all backed by a shared Redis store.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenguard is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, VerifyResult, KeySet, MetricsSnapshot). All
// internal coordination — rotation flow orchestration, record encoding, store
// access, audit dispatch — lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its public
//     API.
//   - Hold package-level store handles: every component receives its store
//     through the Builder so tests can substitute an in-memory backend.
//   - Query the durable user store during verification. Verify is offline: it
//     needs key material and the invalidation markers, nothing else.
//
// # Security contract
//
// Verification fails closed: if the store is unreachable, a token is treated
// as invalid. Refresh-token reuse is a security incident, not a denial — it
// revokes the whole rotation family and surfaces as [ErrRefreshReuse] so the
// caller can terminate every session tied to the chain. Peripheral bookkeeping
// (audit events, liveness markers) fails open and never blocks callers.
package tokenguard
