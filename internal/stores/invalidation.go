package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidationStoreUnavailable = errors.New("invalidation store unavailable")

const userInvalidationTTL = 30 * 24 * time.Hour

// InvalidationStore maintains the access-token revocation markers. All
// markers are monotonically-advancing: later timestamps always win and
// double-setting is idempotent, so concurrent writers converge safely.
//
// Key layout (fixed, part of the deployment's store schema):
//
//	token:{jti}                       liveness marker, access-token TTL
//	blacklist:{jti}                   single-token revocation, remaining TTL
//	global_token_invalidation         epoch-millis cutoff, no TTL
//	user_token_invalidation:{userID}  epoch-millis cutoff, 30-day TTL
type InvalidationStore struct {
	redis redis.UniversalClient
}

func NewInvalidationStore(redisClient redis.UniversalClient) *InvalidationStore {
	return &InvalidationStore{redis: redisClient}
}

func tokenKey(jti string) string {
	return "token:" + jti
}

func blacklistKey(jti string) string {
	return "blacklist:" + jti
}

const globalInvalidationKey = "global_token_invalidation"

func userInvalidationKey(userID string) string {
	return "user_token_invalidation:" + userID
}

// MarkIssued writes the liveness marker for a freshly issued access token.
func (s *InvalidationStore) MarkIssued(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, tokenKey(jti), "valid", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}
	return nil
}

// Blacklist revokes one access token for its remaining lifetime.
func (s *InvalidationStore) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(jti), "true", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}
	return nil
}

// SetGlobalInvalidation invalidates every token issued before t, service-wide.
func (s *InvalidationStore) SetGlobalInvalidation(ctx context.Context, t time.Time) error {
	if err := s.redis.Set(ctx, globalInvalidationKey, strconv.FormatInt(t.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}
	return nil
}

// SetUserInvalidation invalidates every token of one user issued before t.
func (s *InvalidationStore) SetUserInvalidation(ctx context.Context, userID string, t time.Time) error {
	value := strconv.FormatInt(t.UnixMilli(), 10)
	if err := s.redis.Set(ctx, userInvalidationKey(userID), value, userInvalidationTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}
	return nil
}

// Markers is the verification-time view of the revocation state relevant to
// one token.
type Markers struct {
	Blacklisted bool
	GlobalAt    time.Time
	GlobalSet   bool
	UserAt      time.Time
	UserSet     bool
}

// CheckMarkers fetches blacklist and invalidation state for a token in a
// single pipelined round-trip. Any transport failure surfaces as
// ErrInvalidationStoreUnavailable — callers on the verification path must
// fail closed.
func (s *InvalidationStore) CheckMarkers(ctx context.Context, jti, userID string) (Markers, error) {
	pipe := s.redis.Pipeline()
	blCmd := pipe.Exists(ctx, blacklistKey(jti))
	globalCmd := pipe.Get(ctx, globalInvalidationKey)
	userCmd := pipe.Get(ctx, userInvalidationKey(userID))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Markers{}, fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}

	var markers Markers

	exists, err := blCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Markers{}, fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}
	markers.Blacklisted = exists > 0

	if t, ok, err := parseMillisCmd(globalCmd); err != nil {
		return Markers{}, err
	} else if ok {
		markers.GlobalAt = t
		markers.GlobalSet = true
	}

	if t, ok, err := parseMillisCmd(userCmd); err != nil {
		return Markers{}, err
	} else if ok {
		markers.UserAt = t
		markers.UserSet = true
	}

	return markers, nil
}

func parseMillisCmd(cmd *redis.StringCmd) (time.Time, bool, error) {
	value, err := cmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidationStoreUnavailable, err)
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// an unparseable marker is treated as unset rather than poisoning
		// every verification
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis), true, nil
}
