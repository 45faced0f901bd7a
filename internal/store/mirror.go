/**
 * @description
 * This file defines the `SessionMirror` interface used by cells to survive a
 * restart of the shell process, and its Redis implementation. Sessions are
 * stored as JSON under `<prefix>:<owner>:<slot>` with a sliding TTL.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client.
 * - internal/domain: For the session model.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// DefaultKeyPrefix namespaces mirrored sessions.
const DefaultKeyPrefix = "npp:tracker:session"

// SessionMirror persists sessions outside the process.
type SessionMirror interface {
	Save(ctx context.Context, key string, session domain.TrackingSession) error
	// Load reports found=false when nothing is stored under key.
	Load(ctx context.Context, key string) (session domain.TrackingSession, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// RedisMirror stores sessions in Redis.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror. A non-positive ttl stores keys without expiry.
func NewRedisMirror(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisMirror {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = DefaultKeyPrefix
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisMirror{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (m *RedisMirror) redisKey(key string) string {
	return m.prefix + ":" + key
}

func (m *RedisMirror) Save(ctx context.Context, key string, session domain.TrackingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	ttl := m.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := m.client.Set(ctx, m.redisKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

func (m *RedisMirror) Load(ctx context.Context, key string) (domain.TrackingSession, bool, error) {
	payload, err := m.client.Get(ctx, m.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TrackingSession{}, false, nil
	}
	if err != nil {
		return domain.TrackingSession{}, false, fmt.Errorf("load session %s: %w", key, err)
	}

	var session domain.TrackingSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return domain.TrackingSession{}, false, fmt.Errorf("decode session %s: %w", key, err)
	}
	if session.RelatedMessages == nil {
		session.RelatedMessages = []domain.MessageRecord{}
	}
	return session, true, nil
}

func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, m.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}
