package tokenguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

type mockUserProvider struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users: make(map[string]UserRecord),
	}
}

func (p *mockUserProvider) PutUser(user UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[user.UserID] = user
}

func (p *mockUserProvider) RemoveUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
}

func (p *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	user, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func testConfig() Config {
	cfg := Config{}
	cfg.JWT.Issuer = "tokenguard-test"
	cfg.JWT.StaticKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

type engineOption func(*Config, *Builder)

func buildTestEngine(t *testing.T, opts ...engineOption) (*Engine, *miniredis.Miniredis, *mockUserProvider) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	provider := newMockUserProvider()
	provider.PutUser(UserRecord{
		UserID:        "user-1",
		TenantID:      "tenant-1",
		Email:         "alice@example.com",
		EmailVerified: true,
		Roles:         []string{"admin"},
	})

	cfg := testConfig()
	builder := NewBuilder().
		WithRedis(rdb).
		WithUserProvider(provider)

	for _, opt := range opts {
		opt(&cfg, builder)
	}

	engine, err := builder.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr, provider
}

func withConfig(mutate func(*Config)) engineOption {
	return func(cfg *Config, _ *Builder) {
		mutate(cfg)
	}
}

func withBuilder(mutate func(*Builder)) engineOption {
	return func(_ *Config, b *Builder) {
		mutate(b)
	}
}

func waitForEvent(t *testing.T, events <-chan AuditEvent, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
		}
	}
}
