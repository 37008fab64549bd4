package tokenguard

import (
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenguard/internal/metrics"
	"github.com/MrEthical07/tokenguard/internal/stores"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/keyring"
	"github.com/MrEthical07/tokenguard/scope"
	"github.com/MrEthical07/tokenguard/session"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Zero-value config fields are filled from
// defaults before validation, so callers set only what they care about.
type Builder struct {
	cfg      Config
	cfgSet   bool
	redis    redis.UniversalClient
	provider UserProvider
	sink     AuditSink
	scopes   *scope.Registry
}

// NewBuilder describes the newbuilder operation and its observable behavior.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	b.cfgSet = true
	return b
}

// WithRedis sets the shared store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the user lookup used at issuance and rotation.
// Required.
func (b *Builder) WithUserProvider(provider UserProvider) *Builder {
	b.provider = provider
	return b
}

// WithAuditSink sets the destination for security events. Ignored unless
// auditing is enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithScopeRegistry sets the role-to-scope mapping baked into access tokens.
// Optional; without it tokens carry roles but no scopes.
func (b *Builder) WithScopeRegistry(registry *scope.Registry) *Builder {
	b.scopes = registry
	return b
}

// Build validates the configuration and wires the engine. The returned
// engine is ready for concurrent use.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("tokenguard: redis client is required")
	}
	if b.provider == nil {
		return nil, errors.New("tokenguard: user provider is required")
	}

	cfg := applyDefaults(b.cfg, b.cfgSet)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tokenguard: invalid config: %w", err)
	}

	registry := b.scopes
	if registry == nil {
		registry = scope.NewRegistry()
	}
	registry.Freeze()

	keyStore := stores.NewKeyStore(b.redis, cfg.KeyRotation.RedisPrefix)

	engine := &Engine{
		cfg:      cfg,
		provider: b.provider,
		jwtManager: jwt.NewManager(jwt.Config{
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			AccessTTL:    cfg.JWT.AccessTTL,
			Leeway:       cfg.JWT.Leeway,
			MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		}),
		keys: keyring.NewManager(keyStore, keyring.Config{
			Enabled:          cfg.KeyRotation.Enabled,
			RotationInterval: cfg.KeyRotation.RotationInterval,
			OverlapWindow:    cfg.KeyRotation.OverlapWindow,
			MaxKeys:          cfg.KeyRotation.MaxKeys,
			KeyLength:        cfg.KeyRotation.KeyLength,
			StaticKey:        cfg.JWT.StaticKey,
			StaticKID:        cfg.JWT.StaticKeyID,
		}),
		refresh:      stores.NewRefreshStore(b.redis, cfg.Refresh.RedisPrefix),
		invalidation: stores.NewInvalidationStore(b.redis),
		sessions:     session.NewRegistry(b.redis, cfg.Session.RedisPrefix),
		scopes:       registry,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
		ready: true,
	}

	return engine, nil
}

// applyDefaults overlays the caller's config on the defaults: zero-value
// scalar fields keep their default.
func applyDefaults(cfg Config, set bool) Config {
	defaults := defaultConfig()
	if !set {
		return defaults
	}

	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = defaults.JWT.AccessTTL
	}
	// Leeway is never overlaid: zero is a meaningful setting, not an
	// unset field.
	if cfg.JWT.MaxFutureIAT == 0 {
		cfg.JWT.MaxFutureIAT = defaults.JWT.MaxFutureIAT
	}
	if cfg.JWT.StaticKeyID == "" {
		cfg.JWT.StaticKeyID = defaults.JWT.StaticKeyID
	}
	if cfg.Refresh.RefreshTTL == 0 {
		cfg.Refresh.RefreshTTL = defaults.Refresh.RefreshTTL
	}
	if cfg.Refresh.RedisPrefix == "" {
		cfg.Refresh.RedisPrefix = defaults.Refresh.RedisPrefix
	}
	if cfg.KeyRotation.RotationInterval == 0 {
		cfg.KeyRotation.RotationInterval = defaults.KeyRotation.RotationInterval
	}
	if cfg.KeyRotation.OverlapWindow == 0 {
		cfg.KeyRotation.OverlapWindow = defaults.KeyRotation.OverlapWindow
	}
	if cfg.KeyRotation.MaxKeys == 0 {
		cfg.KeyRotation.MaxKeys = defaults.KeyRotation.MaxKeys
	}
	if cfg.KeyRotation.KeyLength == 0 {
		cfg.KeyRotation.KeyLength = defaults.KeyRotation.KeyLength
	}
	if cfg.KeyRotation.RedisPrefix == "" {
		cfg.KeyRotation.RedisPrefix = defaults.KeyRotation.RedisPrefix
	}
	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = defaults.Session.RedisPrefix
	}
	if cfg.Store.OpTimeout == 0 {
		cfg.Store.OpTimeout = defaults.Store.OpTimeout
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = defaults.Audit.BufferSize
	}

	return cfg
}
