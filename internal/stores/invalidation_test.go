package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckMarkersDefaults(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)

	markers, err := store.CheckMarkers(context.Background(), "jti-1", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if markers.Blacklisted || markers.GlobalSet || markers.UserSet {
		t.Fatalf("fresh store reported markers: %+v", markers)
	}
}

func TestBlacklistMarker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)
	ctx := context.Background()

	if err := store.Blacklist(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}

	markers, err := store.CheckMarkers(ctx, "jti-1", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if !markers.Blacklisted {
		t.Fatal("blacklist marker not visible")
	}

	// Another jti is unaffected.
	markers, err = store.CheckMarkers(ctx, "jti-2", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if markers.Blacklisted {
		t.Fatal("blacklist leaked to another jti")
	}

	// The marker evicts with its TTL.
	mr.FastForward(2 * time.Minute)
	markers, err = store.CheckMarkers(ctx, "jti-1", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if markers.Blacklisted {
		t.Fatal("blacklist marker survived its TTL")
	}
}

func TestBlacklistZeroTTLIsNoop(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)

	if err := store.Blacklist(context.Background(), "jti-1", 0); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}
	markers, err := store.CheckMarkers(context.Background(), "jti-1", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if markers.Blacklisted {
		t.Fatal("zero-TTL blacklist wrote a marker")
	}
}

func TestInvalidationCutoffs(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)
	ctx := context.Background()

	globalAt := time.Now().Add(-time.Minute)
	userAt := time.Now()

	if err := store.SetGlobalInvalidation(ctx, globalAt); err != nil {
		t.Fatalf("SetGlobalInvalidation failed: %v", err)
	}
	if err := store.SetUserInvalidation(ctx, "user-1", userAt); err != nil {
		t.Fatalf("SetUserInvalidation failed: %v", err)
	}

	markers, err := store.CheckMarkers(ctx, "jti-1", "user-1")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if !markers.GlobalSet || markers.GlobalAt.UnixMilli() != globalAt.UnixMilli() {
		t.Fatalf("global cutoff = %+v, want %v", markers.GlobalAt, globalAt)
	}
	if !markers.UserSet || markers.UserAt.UnixMilli() != userAt.UnixMilli() {
		t.Fatalf("user cutoff = %+v, want %v", markers.UserAt, userAt)
	}

	// A different user only sees the global cutoff.
	markers, err = store.CheckMarkers(ctx, "jti-1", "user-2")
	if err != nil {
		t.Fatalf("CheckMarkers failed: %v", err)
	}
	if markers.UserSet {
		t.Fatal("user cutoff leaked to another user")
	}
	if !markers.GlobalSet {
		t.Fatal("global cutoff missing for another user")
	}
}

func TestMarkIssuedLivenessMarker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)

	if err := store.MarkIssued(context.Background(), "jti-1", time.Minute); err != nil {
		t.Fatalf("MarkIssued failed: %v", err)
	}
	if !mr.Exists("token:jti-1") {
		t.Fatal("liveness marker not written under token:{jti}")
	}
}

func TestInvalidationStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewInvalidationStore(rdb)

	mr.SetError("forced failure")
	defer mr.SetError("")

	if _, err := store.CheckMarkers(context.Background(), "jti-1", "user-1"); !errors.Is(err, ErrInvalidationStoreUnavailable) {
		t.Fatalf("err = %v, want ErrInvalidationStoreUnavailable", err)
	}
}
