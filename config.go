package tokenguard

import (
	"errors"
	"time"
)

// Config defines a public type used by tokenguard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT         JWTConfig
	Refresh     RefreshConfig
	KeyRotation KeyRotationConfig
	Session     SessionConfig
	Store       StoreConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by tokenguard APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL time.Duration
	Issuer    string
	Audience  []string

	// Leeway is opt-in clock-skew tolerance on expiry checks. Zero means a
	// token is rejected the moment now passes expiresAt.
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// StaticKey signs and verifies tokens when key rotation is disabled.
	// Ignored when KeyRotation.Enabled is true.
	StaticKey   []byte
	StaticKeyID string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by tokenguard APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	RefreshTTL  time.Duration
	RedisPrefix string
}

/*
====================================
KEY ROTATION CONFIG
====================================
*/

// KeyRotationConfig defines a public type used by tokenguard APIs.
//
// KeyRotationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KeyRotationConfig struct {
	Enabled          bool
	RotationInterval time.Duration
	OverlapWindow    time.Duration
	MaxKeys          int
	KeyLength        int
	RedisPrefix      string
}

// SessionConfig defines a public type used by tokenguard APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
}

// StoreConfig defines a public type used by tokenguard APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	// OpTimeout bounds every security-critical store round-trip. On timeout,
	// verification fails closed; rotation fails with ErrStoreUnavailable.
	OpTimeout time.Duration
}

// AuditConfig defines a public type used by tokenguard APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by tokenguard APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			MaxFutureIAT: 10 * time.Minute,
			StaticKeyID:  "static",
		},
		Refresh: RefreshConfig{
			RefreshTTL:  7 * 24 * time.Hour,
			RedisPrefix: "art",
		},
		KeyRotation: KeyRotationConfig{
			Enabled:          false,
			RotationInterval: 24 * time.Hour,
			OverlapWindow:    time.Hour,
			MaxKeys:          5,
			KeyLength:        32,
			RedisPrefix:      "akr",
		},
		Session: SessionConfig{
			RedisPrefix: "session",
		},
		Store: StoreConfig{
			OpTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.StaticKey = cloneBytes(cfg.JWT.StaticKey)
	out.JWT.Audience = cloneStrings(cfg.JWT.Audience)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}

	// Refresh
	if c.Refresh.RefreshTTL <= 0 {
		return errors.New("Refresh RefreshTTL must be > 0")
	}
	if c.Refresh.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Refresh RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix is required")
	}

	// Key rotation
	if c.KeyRotation.Enabled {
		if c.KeyRotation.RotationInterval <= 0 {
			return errors.New("KeyRotation RotationInterval must be > 0")
		}
		if c.KeyRotation.OverlapWindow < c.JWT.AccessTTL {
			return errors.New("KeyRotation OverlapWindow must be >= JWT AccessTTL")
		}
		if c.KeyRotation.OverlapWindow >= c.KeyRotation.RotationInterval {
			return errors.New("KeyRotation OverlapWindow must be < RotationInterval")
		}
		if c.KeyRotation.MaxKeys < 2 {
			return errors.New("KeyRotation MaxKeys must be >= 2")
		}
		if c.KeyRotation.KeyLength < 32 {
			return errors.New("KeyRotation KeyLength must be >= 32 bytes")
		}
		if c.KeyRotation.RedisPrefix == "" {
			return errors.New("KeyRotation RedisPrefix is required")
		}
	} else {
		if len(c.JWT.StaticKey) < 32 {
			return errors.New("JWT StaticKey must be >= 256 bits when rotation is disabled")
		}
		if c.JWT.StaticKeyID == "" {
			return errors.New("JWT StaticKeyID is required when rotation is disabled")
		}
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Store
	if c.Store.OpTimeout <= 0 {
		return errors.New("Store OpTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
