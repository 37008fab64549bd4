// Command tokenguard-rotator runs the signing-key rotation schedule against a
// shared Redis. Any number of instances can run concurrently; at most one
// rotation lands per due interval.
//
// Run:
//
//	tokenguard-rotator -redis-addr localhost:6379 -issuer my-service -check-every 1m
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tokenguard "github.com/MrEthical07/tokenguard"

	"github.com/redis/go-redis/v9"
)

type noUserProvider struct{}

func (noUserProvider) GetUserByID(context.Context, string) (tokenguard.UserRecord, error) {
	return tokenguard.UserRecord{}, tokenguard.ErrUserNotFound
}

func main() {
	var (
		redisAddr  = flag.String("redis-addr", "", "redis address; REDIS_ADDR env is used when empty")
		issuer     = flag.String("issuer", "tokenguard", "token issuer the engine is configured for")
		interval   = flag.Duration("rotation-interval", 24*time.Hour, "how often keys rotate")
		overlap    = flag.Duration("overlap-window", time.Hour, "how long the previous key stays valid")
		checkEvery = flag.Duration("check-every", time.Minute, "how often to check the schedule")
	)
	flag.Parse()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		fmt.Fprintln(os.Stderr, "redis address required (-redis-addr or REDIS_ADDR)")
		os.Exit(2)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := tokenguard.Config{}
	cfg.JWT.Issuer = *issuer
	cfg.KeyRotation.Enabled = true
	cfg.KeyRotation.RotationInterval = *interval
	cfg.KeyRotation.OverlapWindow = *overlap

	engine, err := tokenguard.NewBuilder().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(noUserProvider{}).
		Build()
	if err != nil {
		log.Fatal("engine build: ", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*checkEvery)
	defer ticker.Stop()

	log.Printf("rotator running: interval=%s overlap=%s check=%s", *interval, *overlap, *checkEvery)

	// First check happens immediately so a fresh deployment gets its
	// bootstrap key without waiting a tick.
	for {
		rotated, err := engine.CheckAndRotateKeys(ctx)
		switch {
		case err != nil && errors.Is(err, tokenguard.ErrKeyRotationDisabled):
			log.Fatal("key rotation disabled in config")
		case err != nil:
			log.Printf("rotation check failed: %v", err)
		case rotated:
			log.Print("signing key rotated")
		}

		select {
		case <-ctx.Done():
			log.Print("shutting down")
			return
		case <-ticker.C:
		}
	}
}
