// Package stores contains the Redis-backed persistence for the token
// lifecycle: refresh-token records and their rotation families, access-token
// invalidation markers, and signing-key metadata. Every store receives its
// client at construction; nothing holds package-level handles.
//
// Expiry is always decided by comparing stored timestamps against the wall
// clock. Redis TTLs exist for eviction hygiene only — reuse detection and
// family revocation must be able to reason about records that are logically
// expired but not yet evicted.
package stores
