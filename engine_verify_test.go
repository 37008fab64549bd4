package tokenguard

import (
	"context"
	"testing"
	"time"
)

func TestVerifyMalformedToken(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	for _, token := range []string{
		"",
		"not-a-jwt",
		"aaaa.bbbb.cccc",
	} {
		res := engine.Verify(context.Background(), token)
		if res.Reason != VerifyMalformedOrUntrusted {
			t.Fatalf("Verify(%q) = %s, want malformed", token, res.Reason)
		}
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
	res := engine.Verify(context.Background(), tampered)
	if res.Reason != VerifyMalformedOrUntrusted {
		t.Fatalf("tampered token = %s, want malformed", res.Reason)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	engine, _, _ := buildTestEngine(t, withConfig(func(cfg *Config) {
		cfg.JWT.AccessTTL = time.Second
		cfg.JWT.Leeway = time.Millisecond
	}))

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	time.Sleep(1600 * time.Millisecond)

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyExpired {
		t.Fatalf("expired token = %s, want expired", res.Reason)
	}
	if res.Claims == nil || res.Claims.UserID() != "user-1" {
		t.Fatal("expired outcome should still carry claims for logging")
	}
}

func TestVerifyZeroLeewayExpiresPromptly(t *testing.T) {
	engine, _, _ := buildTestEngine(t, withConfig(func(cfg *Config) {
		cfg.JWT.AccessTTL = time.Second
		cfg.JWT.Leeway = 0
	}))

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	// With no leeway the token dies the moment now passes expiresAt; there is
	// no grace period to fall into.
	time.Sleep(1500 * time.Millisecond)

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyExpired {
		t.Fatalf("past expiry with zero leeway = %s, want expired", res.Reason)
	}
}

func TestVerifyBlacklistedToken(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if err := engine.BlacklistAccessToken(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("BlacklistAccessToken failed: %v", err)
	}

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyBlacklisted {
		t.Fatalf("blacklisted token = %s, want blacklisted", res.Reason)
	}
}

func TestVerifyUserInvalidation(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if err := engine.InvalidateUserTokens(context.Background(), "user-1"); err != nil {
		t.Fatalf("InvalidateUserTokens failed: %v", err)
	}

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyUserInvalidated {
		t.Fatalf("invalidated token = %s, want user invalidated", res.Reason)
	}

	// Tokens issued after the cutoff are unaffected. The cutoff has second
	// granularity on the claims side, so step past it.
	time.Sleep(1100 * time.Millisecond)

	fresh, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("reissue failed: %v", err)
	}
	if res := engine.Verify(context.Background(), fresh.AccessToken); !res.OK() {
		t.Fatalf("post-cutoff token = %s, want ok", res.Reason)
	}
}

func TestVerifyGlobalInvalidation(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if err := engine.InvalidateAllTokens(context.Background()); err != nil {
		t.Fatalf("InvalidateAllTokens failed: %v", err)
	}

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyGloballyInvalidated {
		t.Fatalf("token after global cutoff = %s, want globally invalidated", res.Reason)
	}
}

func TestVerifyFailsClosedWhenStoreDown(t *testing.T) {
	engine, mr, _ := buildTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	mr.SetError("forced failure")
	defer mr.SetError("")

	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyStoreUnavailable {
		t.Fatalf("store down = %s, want store unavailable", res.Reason)
	}
	if res.OK() {
		t.Fatal("token accepted while store unavailable")
	}
}

func TestVerifyOrderExpiredBeforeBlacklist(t *testing.T) {
	engine, _, _ := buildTestEngine(t, withConfig(func(cfg *Config) {
		cfg.JWT.AccessTTL = time.Second
		cfg.JWT.Leeway = time.Millisecond
	}))

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if err := engine.BlacklistAccessToken(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("BlacklistAccessToken failed: %v", err)
	}

	time.Sleep(1600 * time.Millisecond)

	// A token that is both expired and blacklisted reports expired: expiry is
	// decided before any store lookup.
	res := engine.Verify(context.Background(), pair.AccessToken)
	if res.Reason != VerifyExpired {
		t.Fatalf("expired+blacklisted = %s, want expired", res.Reason)
	}
}
