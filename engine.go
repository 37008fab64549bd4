package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenguard/internal/metrics"
	"github.com/MrEthical07/tokenguard/internal/stores"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/keyring"
	"github.com/MrEthical07/tokenguard/scope"
	"github.com/MrEthical07/tokenguard/session"
)

// Engine is the token lifecycle core: it issues signed access tokens paired
// with opaque rotating refresh tokens, verifies access tokens offline against
// the revocation markers, rotates refresh tokens with reuse detection, and
// manages the rolling signing keys.
//
// Engines are built through [Builder] and are safe for concurrent use. All
// store round-trips are bounded by the configured operation timeout.
type Engine struct {
	cfg      Config
	provider UserProvider

	jwtManager   *jwt.Manager
	keys         *keyring.Manager
	refresh      *stores.RefreshStore
	invalidation *stores.InvalidationStore
	sessions     *session.Registry
	scopes       *scope.Registry

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	ready bool
}

// opCtx bounds a store round-trip with the configured operation timeout.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.cfg.Store.OpTimeout)
}

func (e *Engine) guard() error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Session returns the registry record for a session ID, for host-side
// introspection (active-session listings, forced logout UIs).
func (e *Engine) Session(ctx context.Context, sessionID string) (*session.Record, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	record, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record, nil
}

// Health is the point-in-time result of [Engine.HealthCheck].
type Health struct {
	Healthy      bool
	StoreLatency time.Duration
	Detail       string
}

// HealthCheck pings the store and reports reachability plus latency.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	if err := e.guard(); err != nil {
		return Health{Detail: err.Error()}
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	latency, err := e.refresh.Ping(ctx)
	if err != nil {
		return Health{StoreLatency: latency, Detail: err.Error()}
	}
	return Health{Healthy: true, StoreLatency: latency}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a deep copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.SnapshotNow()
}

// Metrics exposes the engine's metric instance for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}
