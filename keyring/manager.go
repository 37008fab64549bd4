package keyring

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/tokenguard/internal"
	"github.com/MrEthical07/tokenguard/internal/stores"
	"github.com/MrEthical07/tokenguard/jwt"
)

var (
	ErrRotationDisabled = errors.New("key rotation disabled")
	ErrNoSigningKey     = errors.New("no signing key available")
)

const keyCacheTTL = 30 * time.Second

// Config mirrors the engine's key-rotation settings.
type Config struct {
	Enabled          bool
	RotationInterval time.Duration
	OverlapWindow    time.Duration
	MaxKeys          int
	KeyLength        int
	StaticKey        []byte
	StaticKID        string
}

// KeySet is the discovery document for verifiers that cache keys out of
// process. CacheTTL tells them how long the set may be reused before
// refetching.
type KeySet struct {
	Algorithm         string
	CurrentKID        string
	PreviousKID       string
	PreviousExpiresAt time.Time
	CacheTTL          time.Duration
}

// Manager resolves signing and verification keys, rotating on schedule.
type Manager struct {
	store *stores.KeyStore
	cfg   Config

	mu             sync.Mutex
	cachedAt       time.Time
	cachedSign     jwt.SigningKey
	cachedVerify   []jwt.SigningKey
	cachedPrevTill time.Time
}

func NewManager(store *stores.KeyStore, cfg Config) *Manager {
	return &Manager{
		store: store,
		cfg:   cfg,
	}
}

func (m *Manager) staticKey() jwt.SigningKey {
	return jwt.SigningKey{KID: m.cfg.StaticKID, Secret: m.cfg.StaticKey}
}

// SigningKey returns the key new access tokens must be signed with. On a
// fresh deployment with rotation enabled and no key published yet, the first
// caller performs the bootstrap rotation.
func (m *Manager) SigningKey(ctx context.Context) (jwt.SigningKey, error) {
	if !m.cfg.Enabled {
		return m.staticKey(), nil
	}

	sign, _, err := m.resolve(ctx)
	if err != nil {
		return jwt.SigningKey{}, err
	}
	return sign, nil
}

// VerificationKeys returns the keys a token signature may verify against:
// the current key, plus the previous key while its overlap window is open.
func (m *Manager) VerificationKeys(ctx context.Context) ([]jwt.SigningKey, error) {
	if !m.cfg.Enabled {
		return []jwt.SigningKey{m.staticKey()}, nil
	}

	_, verify, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return verify, nil
}

// resolve loads the active key material, serving from the short-lived cache
// when fresh. A cached entry whose previous key has crossed its overlap
// expiry is treated as stale, so the overlap window is honored exactly even
// between refreshes.
func (m *Manager) resolve(ctx context.Context) (jwt.SigningKey, []jwt.SigningKey, error) {
	now := time.Now()

	m.mu.Lock()
	fresh := now.Sub(m.cachedAt) < keyCacheTTL && m.cachedSign.KID != ""
	if fresh && !m.cachedPrevTill.IsZero() && now.After(m.cachedPrevTill) {
		fresh = false
	}
	if fresh {
		sign, verify := m.cachedSign, m.cachedVerify
		m.mu.Unlock()
		return sign, verify, nil
	}
	m.mu.Unlock()

	meta, err := m.store.Metadata(ctx)
	if err != nil {
		return jwt.SigningKey{}, nil, err
	}

	if meta.CurrentKID == "" {
		if err := m.rotate(ctx, meta.NextRotation); err != nil && !errors.Is(err, stores.ErrRotationSuperseded) {
			return jwt.SigningKey{}, nil, err
		}
		meta, err = m.store.Metadata(ctx)
		if err != nil {
			return jwt.SigningKey{}, nil, err
		}
		if meta.CurrentKID == "" {
			return jwt.SigningKey{}, nil, ErrNoSigningKey
		}
	}

	currentSecret, err := m.store.Secret(ctx, meta.CurrentKID)
	if err != nil {
		return jwt.SigningKey{}, nil, err
	}

	sign := jwt.SigningKey{KID: meta.CurrentKID, Secret: currentSecret}
	verify := []jwt.SigningKey{sign}
	var prevTill time.Time

	if meta.PreviousKID != "" && m.previousAlive(meta, time.Now()) {
		prevSecret, err := m.store.Secret(ctx, meta.PreviousKID)
		if err == nil {
			verify = append(verify, jwt.SigningKey{KID: meta.PreviousKID, Secret: prevSecret})
			prevTill = meta.PreviousAt.Add(m.cfg.OverlapWindow)
		} else if !errors.Is(err, stores.ErrKeyNotFound) {
			return jwt.SigningKey{}, nil, err
		}
	}

	m.mu.Lock()
	m.cachedAt = time.Now()
	m.cachedSign = sign
	m.cachedVerify = verify
	m.cachedPrevTill = prevTill
	m.mu.Unlock()

	return sign, verify, nil
}

func (m *Manager) previousAlive(meta stores.KeyMetadata, now time.Time) bool {
	if meta.PreviousAt.IsZero() {
		return false
	}
	return now.Before(meta.PreviousAt.Add(m.cfg.OverlapWindow))
}

// CheckAndRotate rotates if the schedule is due and reports whether this call
// performed the rotation. Losing the race to a concurrent rotator is not an
// error: the rotation happened, just not here.
func (m *Manager) CheckAndRotate(ctx context.Context) (bool, error) {
	if !m.cfg.Enabled {
		return false, ErrRotationDisabled
	}

	meta, err := m.store.Metadata(ctx)
	if err != nil {
		return false, err
	}
	if meta.CurrentKID != "" && !meta.NextRotation.IsZero() && time.Now().Before(meta.NextRotation) {
		return false, nil
	}

	if err := m.rotate(ctx, meta.NextRotation); err != nil {
		if errors.Is(err, stores.ErrRotationSuperseded) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ForceRotate rotates immediately regardless of schedule.
func (m *Manager) ForceRotate(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrRotationDisabled
	}

	meta, err := m.store.Metadata(ctx)
	if err != nil {
		return err
	}
	if err := m.rotate(ctx, meta.NextRotation); err != nil {
		if errors.Is(err, stores.ErrRotationSuperseded) {
			return nil
		}
		return err
	}
	return nil
}

func (m *Manager) rotate(ctx context.Context, expectedNext time.Time) error {
	secret := make([]byte, m.cfg.KeyLength)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate key material: %w", err)
	}

	now := time.Now()
	err := m.store.Promote(ctx, stores.PromoteInput{
		KID:                  internal.NewKeyID(),
		Secret:               secret,
		Now:                  now,
		NextRotation:         now.Add(m.cfg.RotationInterval),
		ExpectedNextRotation: expectedNext,
		MaxKeys:              m.cfg.MaxKeys,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cachedAt = time.Time{}
	m.mu.Unlock()
	return nil
}

// KeySet publishes the active key identifiers for out-of-process verifiers.
func (m *Manager) KeySet(ctx context.Context) (KeySet, error) {
	if !m.cfg.Enabled {
		return KeySet{
			Algorithm:  "HS256",
			CurrentKID: m.cfg.StaticKID,
			CacheTTL:   keyCacheTTL,
		}, nil
	}

	meta, err := m.store.Metadata(ctx)
	if err != nil {
		return KeySet{}, err
	}

	set := KeySet{
		Algorithm:  "HS256",
		CurrentKID: meta.CurrentKID,
		CacheTTL:   keyCacheTTL,
	}
	if meta.PreviousKID != "" && m.previousAlive(meta, time.Now()) {
		set.PreviousKID = meta.PreviousKID
		set.PreviousExpiresAt = meta.PreviousAt.Add(m.cfg.OverlapWindow)
	}
	return set, nil
}
