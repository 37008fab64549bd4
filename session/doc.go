// Package session tracks the server-side session each refresh-token family
// belongs to. A session outlives individual rotations: it is created at
// issuance, survives every rotate, and dies on logout or family revocation.
package session
