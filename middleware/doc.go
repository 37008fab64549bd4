// Package middleware exposes an HTTP adapter that enforces access-token
// verification in front of handlers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement verification logic itself — all decisions are delegated to
// Engine.Verify.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Verify.
package middleware
