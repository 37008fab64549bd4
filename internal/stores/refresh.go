package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshRecordVersionV1 = 1

const recordFlagRevoked = 1 << 0

var (
	ErrRefreshRecordNotFound   = errors.New("refresh record not found")
	ErrRefreshRecordExpired    = errors.New("refresh record expired")
	ErrRefreshRecordReused     = errors.New("refresh record already consumed")
	ErrRefreshRecordRevoked    = errors.New("refresh record revoked")
	ErrRefreshStoreUnavailable = errors.New("refresh store unavailable")
)

// RefreshRecord is the durable state of one opaque refresh token. Records are
// append-mostly: after creation the only mutations are setting ReplacedBy
// (consumption) and Revoked (family revocation).
//
// IssuedAt and ExpiresAt are epoch milliseconds. Expiry decisions compare
// them against the wall clock; the Redis TTL is eviction hygiene only.
type RefreshRecord struct {
	UserID     string
	FamilyID   string
	SessionID  string
	ReplacedBy string
	ClientIP   string
	UserAgent  string
	IssuedAt   int64
	ExpiresAt  int64
	Revoked    bool
}

// RefreshStore persists refresh-token records keyed by the opaque token
// value, plus a per-family index set used for family-wide revocation.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(redisClient redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "art"
	}
	return &RefreshStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RefreshStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RefreshStore) familyKey(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

// Save creates a new record and registers its token in the family index.
func (s *RefreshStore) Save(ctx context.Context, token string, record *RefreshRecord, ttl time.Duration) error {
	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}

	famKey := s.familyKey(record.FamilyID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(token), encoded, ttl)
		pipe.SAdd(ctx, famKey, token)
		pipe.Expire(ctx, famKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}

	return nil
}

// Get fetches and decodes a record without mutating it.
func (s *RefreshStore) Get(ctx context.Context, token string) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}

	return decodeRefreshRecord(data)
}

// Consume marks the record for token as exchanged by writing replacedBy, under
// an optimistic WATCH/MULTI compare-and-swap. Exactly one of any number of
// concurrent Consume calls for the same live token succeeds; the rest observe
// the written ReplacedBy and report ErrRefreshRecordReused.
//
// The returned record reflects the state that drove the decision, so callers
// always have FamilyID available for family revocation.
func (s *RefreshStore) Consume(ctx context.Context, token, replacedBy string) (*RefreshRecord, error) {
	const maxRetries = 4
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		var consumed *RefreshRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRefreshRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.UnixMilli() >= record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.familyKey(record.FamilyID), token)
					return nil
				})
				if err != nil {
					return err
				}
				consumed = record
				return ErrRefreshRecordExpired
			}

			if record.ReplacedBy != "" {
				consumed = record
				return ErrRefreshRecordReused
			}

			if record.Revoked {
				consumed = record
				return ErrRefreshRecordRevoked
			}

			record.ReplacedBy = replacedBy
			updated, err := encodeRefreshRecord(record)
			if err != nil {
				return err
			}

			ttl := time.Until(time.UnixMilli(record.ExpiresAt))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			// the record changed between read and write; re-evaluate
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrRefreshRecordNotFound
			case errors.Is(err, ErrRefreshRecordExpired),
				errors.Is(err, ErrRefreshRecordReused),
				errors.Is(err, ErrRefreshRecordRevoked):
				return consumed, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
			}
		}

		return consumed, nil
	}

	// Retries exhausted: a concurrent writer kept winning. Re-read once to
	// classify — the dominant cause is a concurrent consume of this token.
	record, err := s.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrRefreshRecordNotFound) {
			return nil, ErrRefreshRecordNotFound
		}
		return nil, err
	}
	if record.ReplacedBy != "" {
		return record, ErrRefreshRecordReused
	}
	return nil, fmt.Errorf("%w: consume contention not resolved", ErrRefreshStoreUnavailable)
}

// RevokeFamily sets Revoked on every record in the family and returns how
// many records were marked. The walk is read-then-write per record;
// revocation is monotonic, so concurrent revokers converge on the same state.
func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	tokens, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	getCmds := make([]*redis.StringCmd, len(tokens))
	for i, token := range tokens {
		getCmds[i] = pipe.Get(ctx, s.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}

	revoked := 0
	writePipe := s.redis.Pipeline()
	for i, cmd := range getCmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return revoked, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, cmdErr)
		}

		record, decErr := decodeRefreshRecord(data)
		if decErr != nil {
			continue
		}
		if record.Revoked {
			continue
		}

		record.Revoked = true
		encoded, encErr := encodeRefreshRecord(record)
		if encErr != nil {
			return revoked, encErr
		}

		ttl := time.Until(time.UnixMilli(record.ExpiresAt))
		if ttl <= 0 {
			writePipe.Del(ctx, s.key(tokens[i]))
			continue
		}
		writePipe.Set(ctx, s.key(tokens[i]), encoded, ttl)
		revoked++
	}

	if _, err := writePipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return revoked, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}

	return revoked, nil
}

// Delete removes the record for token and its family-index entry. Returns the
// deleted record, or ErrRefreshRecordNotFound when nothing was stored.
func (s *RefreshStore) Delete(ctx context.Context, token string) (*RefreshRecord, error) {
	record, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(token))
		pipe.SRem(ctx, s.familyKey(record.FamilyID), token)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}

	return record, nil
}

// FamilySize returns the number of tracked tokens in a family.
func (s *RefreshStore) FamilySize(ctx context.Context, familyID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}
	return int(n), nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *RefreshStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRefreshStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeRefreshRecord(record *RefreshRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(refreshRecordVersionV1)

	var flags byte
	if record.Revoked {
		flags |= recordFlagRevoked
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.UserID,
		record.FamilyID,
		record.SessionID,
		record.ReplacedBy,
		record.ClientIP,
		record.UserAgent,
	} {
		if len(field) > 65535 {
			return nil, errors.New("refresh record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != refreshRecordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &RefreshRecord{
		Revoked: flags&recordFlagRevoked != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{
		&record.UserID,
		&record.FamilyID,
		&record.SessionID,
		&record.ReplacedBy,
		&record.ClientIP,
		&record.UserAgent,
	} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
