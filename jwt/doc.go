// Package jwt wraps token creation and parsing for the engine's HS256 access
// tokens. It is deliberately narrow: it signs claims and verifies signatures
// against a caller-supplied key set. It does not decide token validity —
// expiry, blacklist and invalidation checks belong to the verification flow,
// which needs to order them and tag the outcome.
package jwt
