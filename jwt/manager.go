package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenUntrusted covers every structural and signature failure: not a
	// JWT, wrong algorithm, no key verifies it, or claims that contradict the
	// manager's configuration. Callers must not distinguish these outward.
	ErrTokenUntrusted = errors.New("token malformed or untrusted")

	// ErrNoVerificationKeys means the key set handed to ParseAccess was empty.
	ErrNoVerificationKeys = errors.New("no verification keys available")
)

const accessTokenType = "access"

// SigningKey is one HS256 key with its public identifier. The KID travels in
// the token header so verification can pick the right key without trial
// decryption.
type SigningKey struct {
	KID    string
	Secret []byte
}

// AccessClaims is the access-token payload. Registered claims carry identity
// of the token itself; the custom fields carry the user snapshot taken at
// issuance.
type AccessClaims struct {
	SessionID     string   `json:"sid"`
	Roles         []string `json:"roles,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	Tenant        string   `json:"tenant,omitempty"`
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	MFAVerified   bool     `json:"mfa_verified"`
	TokenType     string   `json:"typ"`
	jwtlib.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// JTI returns the token's unique identifier.
func (c *AccessClaims) JTI() string {
	return c.ID
}

// Manager signs and parses access tokens for one issuer configuration.
type Manager struct {
	issuer       string
	audience     []string
	accessTTL    time.Duration
	leeway       time.Duration
	maxFutureIAT time.Duration
}

// Config mirrors the engine's JWT settings relevant to token shape.
type Config struct {
	Issuer       string
	Audience     []string
	AccessTTL    time.Duration
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		accessTTL:    cfg.AccessTTL,
		leeway:       cfg.Leeway,
		maxFutureIAT: cfg.MaxFutureIAT,
	}
}

// AccessInput is the user snapshot baked into a new access token.
type AccessInput struct {
	UserID        string
	SessionID     string
	Roles         []string
	Scopes        []string
	Tenant        string
	Email         string
	EmailVerified bool
	MFAVerified   bool
}

// CreateAccess signs a new access token with key and returns the compact
// serialization plus the claims that went into it. The jti is freshly
// generated; callers use it to write the liveness marker.
func (m *Manager) CreateAccess(key SigningKey, in AccessInput) (string, *AccessClaims, error) {
	if len(key.Secret) == 0 {
		return "", nil, errors.New("signing key has no material")
	}

	now := time.Now()
	claims := &AccessClaims{
		SessionID:     in.SessionID,
		Roles:         in.Roles,
		Scopes:        in.Scopes,
		Tenant:        in.Tenant,
		Email:         in.Email,
		EmailVerified: in.EmailVerified,
		MFAVerified:   in.MFAVerified,
		TokenType:     accessTokenType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   in.UserID,
			Issuer:    m.issuer,
			Audience:  jwtlib.ClaimStrings(m.audience),
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.accessTTL)),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	token.Header["kid"] = key.KID

	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// ParseAccess verifies the signature of tokenString against keys and returns
// its claims. Expiry is NOT checked here: callers inspect the claims so an
// expired-but-genuine token can be reported distinctly from garbage.
//
// The key whose KID matches the token header is tried first; on signature
// failure the remaining keys are tried in order. Any failure that is not a
// pure expiry condition collapses into ErrTokenUntrusted.
func (m *Manager) ParseAccess(tokenString string, keys []SigningKey) (*AccessClaims, error) {
	if len(keys) == 0 {
		return nil, ErrNoVerificationKeys
	}

	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithoutClaimsValidation(),
	)

	for _, key := range orderByKID(tokenString, keys, parser) {
		claims := &AccessClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwtlib.Token) (interface{}, error) {
			return key.Secret, nil
		})
		if err != nil {
			if errors.Is(err, jwtlib.ErrTokenSignatureInvalid) {
				continue
			}
			return nil, ErrTokenUntrusted
		}
		if !token.Valid {
			return nil, ErrTokenUntrusted
		}

		if err := m.checkClaims(claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	return nil, ErrTokenUntrusted
}

// checkClaims enforces everything except expiry: token type, issuer,
// audience, and that iat is not implausibly far in the future.
func (m *Manager) checkClaims(claims *AccessClaims) error {
	if claims.TokenType != accessTokenType {
		return ErrTokenUntrusted
	}
	if claims.Issuer != m.issuer {
		return ErrTokenUntrusted
	}
	if len(m.audience) > 0 && !audienceMatches(claims.Audience, m.audience) {
		return ErrTokenUntrusted
	}
	if claims.IssuedAt != nil && m.maxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(m.maxFutureIAT)) {
			return ErrTokenUntrusted
		}
	}
	return nil
}

// Expired reports whether claims are past their expiry, honoring the
// configured leeway. Tokens with no exp claim are treated as expired.
func (m *Manager) Expired(claims *AccessClaims, now time.Time) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return now.After(claims.ExpiresAt.Time.Add(m.leeway))
}

// RemainingLifetime returns how long claims remain valid from now. Zero or
// negative means already expired.
func (m *Manager) RemainingLifetime(claims *AccessClaims, now time.Time) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(now)
}

// orderByKID returns keys with the header-matching key first. When the token
// cannot even be split into header segments the original order is returned
// and the parse loop will fail structurally on the first attempt.
func orderByKID(tokenString string, keys []SigningKey, parser *jwtlib.Parser) []SigningKey {
	token, _, err := parser.ParseUnverified(tokenString, &AccessClaims{})
	if err != nil {
		return keys
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return keys
	}

	ordered := make([]SigningKey, 0, len(keys))
	for _, key := range keys {
		if key.KID == kid {
			ordered = append(ordered, key)
		}
	}
	for _, key := range keys {
		if key.KID != kid {
			ordered = append(ordered, key)
		}
	}
	return ordered
}

func audienceMatches(tokenAud jwtlib.ClaimStrings, expected []string) bool {
	for _, want := range expected {
		for _, have := range tokenAud {
			if have == want {
				return true
			}
		}
	}
	return false
}
