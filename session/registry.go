package session

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

var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
)

const sessionRecordVersionV1 = 1

// Record is the stored state of one session. CreatedAt is epoch
// milliseconds.
type Record struct {
	UserID    string
	FamilyID  string
	ClientIP  string
	UserAgent string
	CreatedAt int64
}

// Registry persists sessions in Redis under {prefix}:{sessionID}.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRegistry(redisClient redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "session"
	}
	return &Registry{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + ":" + sessionID
}

// Register creates the session record. TTL matches the refresh-token
// lifetime so a session cannot outlive its family.
func (r *Registry) Register(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, r.key(sessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return nil
}

// Get fetches a session record.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return decodeSessionRecord(data)
}

// Touch extends the session TTL, used on rotation so an active session keeps
// pace with its newest refresh token.
func (r *Registry) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	ok, err := r.redis.Expire(ctx, r.key(sessionID), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes the session. Deleting an absent session is not an error.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	if err := r.redis.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return nil
}

func encodeSessionRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.UserID,
		record.FamilyID,
		record.ClientIP,
		record.UserAgent,
	} {
		if len(field) > 65535 {
			return nil, errors.New("session record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSessionRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{
		&record.UserID,
		&record.FamilyID,
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
