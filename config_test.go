package tokenguard

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Issuer = "test"
	cfg.JWT.StaticKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing issuer", func(c *Config) { c.JWT.Issuer = "" }, "Issuer"},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"excessive leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, "Leeway"},
		{"refresh not exceeding access", func(c *Config) { c.Refresh.RefreshTTL = c.JWT.AccessTTL }, "RefreshTTL"},
		{"short static key", func(c *Config) { c.JWT.StaticKey = []byte("short") }, "StaticKey"},
		{"zero op timeout", func(c *Config) { c.Store.OpTimeout = 0 }, "OpTimeout"},
		{"overlap below access ttl", func(c *Config) {
			c.KeyRotation.Enabled = true
			c.KeyRotation.OverlapWindow = c.JWT.AccessTTL - time.Second
		}, "OverlapWindow"},
		{"overlap at rotation interval", func(c *Config) {
			c.KeyRotation.Enabled = true
			c.KeyRotation.OverlapWindow = c.KeyRotation.RotationInterval
		}, "OverlapWindow"},
		{"too few retained keys", func(c *Config) {
			c.KeyRotation.Enabled = true
			c.KeyRotation.MaxKeys = 1
		}, "MaxKeys"},
		{"weak key length", func(c *Config) {
			c.KeyRotation.Enabled = true
			c.KeyRotation.KeyLength = 16
		}, "KeyLength"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestBuilderAppliesDefaults(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := Config{}
	cfg.JWT.Issuer = "test"
	cfg.JWT.StaticKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newMockUserProvider()).
		Build()
	if err != nil {
		t.Fatalf("build with sparse config failed: %v", err)
	}
	defer engine.Close()

	if engine.cfg.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL default = %s", engine.cfg.JWT.AccessTTL)
	}
	if engine.cfg.JWT.Leeway != 0 {
		t.Fatalf("Leeway default = %s, want 0", engine.cfg.JWT.Leeway)
	}
	if engine.cfg.Refresh.RedisPrefix != "art" {
		t.Fatalf("refresh prefix default = %q", engine.cfg.Refresh.RedisPrefix)
	}
	if engine.cfg.Store.OpTimeout != 3*time.Second {
		t.Fatalf("OpTimeout default = %s", engine.cfg.Store.OpTimeout)
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := NewBuilder().WithUserProvider(newMockUserProvider()).Build(); err == nil {
		t.Fatal("build without redis succeeded")
	}
	if _, err := NewBuilder().WithRedis(rdb).Build(); err == nil {
		t.Fatal("build without user provider succeeded")
	}
}

func TestConfigCloneIsolatesCallerSlices(t *testing.T) {
	_, rdb := newTestRedis(t)

	key := []byte("0123456789abcdef0123456789abcdef")
	cfg := Config{}
	cfg.JWT.Issuer = "test"
	cfg.JWT.StaticKey = key

	engine, err := NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newMockUserProvider()).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	key[0] = 'X'
	if engine.cfg.JWT.StaticKey[0] == 'X' {
		t.Fatal("engine shares the caller's key slice")
	}
}
