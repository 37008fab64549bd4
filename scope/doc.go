// Package scope maps roles to token scopes. Registries are built once during
// wiring, frozen, and then read concurrently from the issuance path without
// locks.
package scope
