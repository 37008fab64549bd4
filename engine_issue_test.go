package tokenguard

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/tokenguard/scope"
)

func TestIssuePairReturnsWorkingTokens(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.SessionID == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}
	if pair.ExpiresIn <= 0 {
		t.Fatalf("ExpiresIn = %d, want > 0", pair.ExpiresIn)
	}

	res := engine.Verify(context.Background(), pair.AccessToken)
	if !res.OK() {
		t.Fatalf("fresh access token rejected: %s", res.Reason)
	}
	if res.Claims.UserID() != "user-1" {
		t.Fatalf("claims subject = %q, want user-1", res.Claims.UserID())
	}
	if res.Claims.SessionID != pair.SessionID {
		t.Fatalf("claims session = %q, want %q", res.Claims.SessionID, pair.SessionID)
	}
	if res.Claims.Tenant != "tenant-1" {
		t.Fatalf("claims tenant = %q", res.Claims.Tenant)
	}
}

func TestIssuePairResolvesScopes(t *testing.T) {
	registry := scope.NewRegistry()
	if err := registry.RegisterRole("admin", "user.read", "user.write"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}

	engine, _, _ := buildTestEngine(t, withBuilder(func(b *Builder) {
		b.WithScopeRegistry(registry)
	}))

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	res := engine.Verify(context.Background(), pair.AccessToken)
	if !res.OK() {
		t.Fatalf("verify failed: %s", res.Reason)
	}
	if len(res.Claims.Scopes) != 2 {
		t.Fatalf("scopes = %v, want user.read and user.write", res.Claims.Scopes)
	}
}

func TestIssuePairUnknownUser(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	if _, err := engine.IssuePair(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestIssuePairDistinctSessions(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	first, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("first IssuePair failed: %v", err)
	}
	second, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("second IssuePair failed: %v", err)
	}

	if first.SessionID == second.SessionID {
		t.Fatal("two issuances shared a session ID")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("two issuances shared a refresh token")
	}
}

func TestIssuePairRegistersSession(t *testing.T) {
	engine, _, _ := buildTestEngine(t)
	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.1"), "test-agent")

	pair, err := engine.IssuePair(ctx, "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	record, err := engine.Session(context.Background(), pair.SessionID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if record.UserID != "user-1" {
		t.Fatalf("session user = %q, want user-1", record.UserID)
	}
	if record.ClientIP != "192.0.2.1" || record.UserAgent != "test-agent" {
		t.Fatalf("session provenance = %q / %q", record.ClientIP, record.UserAgent)
	}
	if record.CreatedAt <= 0 {
		t.Fatalf("session CreatedAt = %d", record.CreatedAt)
	}

	if _, err := engine.Session(context.Background(), "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestIssuePairStoreDown(t *testing.T) {
	engine, mr, _ := buildTestEngine(t)

	mr.SetError("forced failure")
	defer mr.SetError("")

	if _, err := engine.IssuePair(context.Background(), "user-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}
