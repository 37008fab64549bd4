package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	sessionIDSize    = 16
	opaqueTokenSize  = 32
	opaqueEncodedLen = 43 // base64url, no padding, 32 bytes
)

// NewSessionID returns a 128-bit random session identifier in compact
// base64url form.
func NewSessionID() string {
	var raw [sessionIDSize]byte
	// crypto/rand.Read never returns an error.
	_, _ = rand.Read(raw[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// NewOpaqueToken returns a 256-bit random refresh-token value. The value is
// the store key for the refresh record and is never derivable from any claim.
func NewOpaqueToken() string {
	var raw [opaqueTokenSize]byte
	_, _ = rand.Read(raw[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// ValidateOpaqueToken rejects values that cannot be a token this library
// minted, before any store round-trip.
func ValidateOpaqueToken(token string) error {
	if len(token) != opaqueEncodedLen {
		return errors.New("invalid refresh token size")
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return errors.New("invalid refresh token encoding")
	}
	return nil
}

// NewFamilyID returns the identifier shared by every token in one rotation
// chain.
func NewFamilyID() string {
	return uuid.NewString()
}

// NewKeyID returns a fresh signing-key identifier.
func NewKeyID() string {
	return uuid.NewString()
}
