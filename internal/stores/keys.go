package stores

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrKeyStoreUnavailable = errors.New("key store unavailable")
	ErrKeyNotFound         = errors.New("signing key not found")
	ErrRotationSuperseded  = errors.New("rotation superseded by concurrent rotation")
)

// KeyMetadata is the published rotation state: which key signs new tokens,
// which key is still honored for verification, and when the next rotation is
// due. Zero timestamps mean the field was never set.
type KeyMetadata struct {
	CurrentKID   string
	PreviousKID  string
	CurrentAt    time.Time
	PreviousAt   time.Time
	NextRotation time.Time
}

// KeyStore persists signing-key material and the rotation pointers.
//
// Key layout under the configured prefix:
//
//	{prefix}:current             key ID signing new tokens
//	{prefix}:previous            key ID still accepted for verification
//	{prefix}:current_timestamp   epoch millis of the last promotion
//	{prefix}:previous_timestamp  epoch millis the previous key was demoted
//	{prefix}:next_rotation       epoch millis the next rotation is due
//	{prefix}:key:{kid}           base64 key material
//	{prefix}:keys                ordered list of key IDs, newest first
type KeyStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewKeyStore(redisClient redis.UniversalClient, prefix string) *KeyStore {
	if prefix == "" {
		prefix = "akr"
	}
	return &KeyStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *KeyStore) currentKey() string      { return s.prefix + ":current" }
func (s *KeyStore) previousKey() string     { return s.prefix + ":previous" }
func (s *KeyStore) currentTSKey() string    { return s.prefix + ":current_timestamp" }
func (s *KeyStore) previousTSKey() string   { return s.prefix + ":previous_timestamp" }
func (s *KeyStore) nextRotationKey() string { return s.prefix + ":next_rotation" }
func (s *KeyStore) listKey() string         { return s.prefix + ":keys" }
func (s *KeyStore) materialKey(kid string) string {
	return s.prefix + ":key:" + kid
}

// Metadata fetches the rotation pointers in a single MGET. A deployment that
// never rotated returns a zero-value KeyMetadata and no error.
func (s *KeyStore) Metadata(ctx context.Context) (KeyMetadata, error) {
	values, err := s.redis.MGet(ctx,
		s.currentKey(),
		s.previousKey(),
		s.currentTSKey(),
		s.previousTSKey(),
		s.nextRotationKey(),
	).Result()
	if err != nil {
		return KeyMetadata{}, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}

	meta := KeyMetadata{
		CurrentKID:   stringAt(values, 0),
		PreviousKID:  stringAt(values, 1),
		CurrentAt:    millisAt(values, 2),
		PreviousAt:   millisAt(values, 3),
		NextRotation: millisAt(values, 4),
	}
	return meta, nil
}

// Secret returns the raw key material for kid.
func (s *KeyStore) Secret(ctx context.Context, kid string) ([]byte, error) {
	encoded, err := s.redis.Get(ctx, s.materialKey(kid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}

	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt key material for %s", ErrKeyStoreUnavailable, kid)
	}
	return secret, nil
}

// PromoteInput carries one rotation: the freshly generated key becomes
// current, the old current is demoted to previous.
type PromoteInput struct {
	KID          string
	Secret       []byte
	Now          time.Time
	NextRotation time.Time
	// ExpectedNextRotation is the next_rotation value the caller observed
	// before deciding to rotate. Promotion aborts with ErrRotationSuperseded
	// if another rotation landed in between.
	ExpectedNextRotation time.Time
	MaxKeys              int
}

// Promote installs a new current key under an optimistic compare-and-swap on
// the next_rotation pointer, so exactly one of any number of concurrent
// scheduled rotations wins. Key material beyond MaxKeys is pruned.
func (s *KeyStore) Promote(ctx context.Context, in PromoteInput) error {
	nrKey := s.nextRotationKey()

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		observed, err := tx.Get(ctx, nrKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if parseMillis(observed) != in.ExpectedNextRotation.UnixMilli() && !in.ExpectedNextRotation.IsZero() {
			return ErrRotationSuperseded
		}
		if in.ExpectedNextRotation.IsZero() && observed != "" {
			return ErrRotationSuperseded
		}

		oldCurrent, err := tx.Get(ctx, s.currentKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		nowMillis := strconv.FormatInt(in.Now.UnixMilli(), 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.materialKey(in.KID), base64.StdEncoding.EncodeToString(in.Secret), 0)
			pipe.Set(ctx, s.currentKey(), in.KID, 0)
			pipe.Set(ctx, s.currentTSKey(), nowMillis, 0)
			if oldCurrent != "" {
				pipe.Set(ctx, s.previousKey(), oldCurrent, 0)
				pipe.Set(ctx, s.previousTSKey(), nowMillis, 0)
			}
			pipe.Set(ctx, nrKey, strconv.FormatInt(in.NextRotation.UnixMilli(), 10), 0)
			pipe.LPush(ctx, s.listKey(), in.KID)
			return nil
		})
		return err
	}, nrKey)

	if err != nil {
		if errors.Is(err, ErrRotationSuperseded) {
			return ErrRotationSuperseded
		}
		if err == redis.TxFailedErr {
			return ErrRotationSuperseded
		}
		return fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}

	if in.MaxKeys > 0 {
		if err := s.prune(ctx, in.MaxKeys); err != nil {
			return err
		}
	}
	return nil
}

// prune drops key material older than the retained window. The pointers are
// never pruned; only material beyond maxKeys entries is deleted.
func (s *KeyStore) prune(ctx context.Context, maxKeys int) error {
	stale, err := s.redis.LRange(ctx, s.listKey(), int64(maxKeys), -1).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	if len(stale) == 0 {
		return nil
	}

	pipe := s.redis.Pipeline()
	for _, kid := range stale {
		pipe.Del(ctx, s.materialKey(kid))
	}
	pipe.LTrim(ctx, s.listKey(), 0, int64(maxKeys)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return nil
}

func stringAt(values []interface{}, i int) string {
	if i >= len(values) || values[i] == nil {
		return ""
	}
	str, ok := values[i].(string)
	if !ok {
		return ""
	}
	return str
}

func millisAt(values []interface{}, i int) time.Time {
	millis := parseMillis(stringAt(values, i))
	if millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

func parseMillis(value string) int64 {
	if value == "" {
		return 0
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return millis
}
