// Package sessions persists booking sessions between widget requests.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medos-booking/internal/wizard"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("sessions: not found")
	// ErrLocked is returned when another request holds the session.
	ErrLocked = errors.New("sessions: session is busy")
	// ErrLockLost is returned when a lock expired and may now belong to
	// another request.
	ErrLockLost = errors.New("sessions: session lock lost")
)

// Store persists sessions and serialises requests that mutate them.
type Store interface {
	Save(ctx context.Context, s wizard.Session) error
	Load(ctx context.Context, id string) (wizard.Session, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (token string, err error)
	Unlock(ctx context.Context, id, token string) error
	// Refresh extends the lock while token still holds it and returns
	// ErrLockLost otherwise.
	Refresh(ctx context.Context, id, token string) error
}

// unlockScript deletes the lock only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore keeps sessions as JSON with a sliding TTL.
type RedisStore struct {
	redis   *redis.Client
	tracer  trace.Tracer
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisStore panics on a nil client.
func NewRedisStore(client *redis.Client, ttl, lockTTL time.Duration) *RedisStore {
	if client == nil {
		panic("sessions: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 20 * time.Second
	}
	return &RedisStore{
		redis:   client,
		tracer:  otel.Tracer("medos.internal.sessions"),
		ttl:     ttl,
		lockTTL: lockTTL,
	}
}

func (s *RedisStore) Save(ctx context.Context, session wizard.Session) error {
	ctx, span := s.tracer.Start(ctx, "sessions.save")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID), attribute.String("session.step", session.Step.String()))

	if session.ID == "" {
		return errors.New("sessions: session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (wizard.Session, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return wizard.Session{}, ErrNotFound
		}
		span.RecordError(err)
		return wizard.Session{}, fmt.Errorf("sessions: failed to load session: %w", err)
	}

	var session wizard.Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return wizard.Session{}, fmt.Errorf("sessions: failed to decode session: %w", err)
	}
	return session, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "sessions.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(id), lockKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to delete session: %w", err)
	}
	return nil
}

// Lock takes the per-session lock with SET NX. The lock expires on its own
// if the holder dies.
func (s *RedisStore) Lock(ctx context.Context, id string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.lock")
	defer span.End()

	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, lockKey(id), token, s.lockTTL).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sessions: failed to lock session: %w", err)
	}
	if !ok {
		return "", ErrLocked
	}
	return token, nil
}

func (s *RedisStore) Unlock(ctx context.Context, id, token string) error {
	if err := unlockScript.Run(ctx, s.redis, []string{lockKey(id)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("sessions: failed to unlock session: %w", err)
	}
	return nil
}

func (s *RedisStore) Refresh(ctx context.Context, id, token string) error {
	n, err := refreshScript.Run(ctx, s.redis, []string{lockKey(id)}, token, s.lockTTL.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("sessions: failed to refresh lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("booking_session:%s", id)
}

func lockKey(id string) string {
	return fmt.Sprintf("booking_session_lock:%s", id)
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is an in-process Store for local development without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	locks    map[string]string
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]string),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, session wizard.Session) error {
	if session.ID == "" {
		return errors.New("sessions: session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("sessions: failed to marshal session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = memoryEntry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (wizard.Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && m.now().After(entry.expires) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return wizard.Session{}, ErrNotFound
	}
	var session wizard.Session
	if err := json.Unmarshal(entry.data, &session); err != nil {
		return wizard.Session{}, fmt.Errorf("sessions: failed to decode session: %w", err)
	}
	return session, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.locks, id)
	return nil
}

func (m *MemoryStore) Lock(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return "", ErrLocked
	}
	token := uuid.NewString()
	m.locks[id] = token
	return token, nil
}

func (m *MemoryStore) Unlock(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == token {
		delete(m.locks, id)
	}
	return nil
}

// Refresh only checks ownership; memory locks do not expire.
func (m *MemoryStore) Refresh(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] != token {
		return ErrLockLost
	}
	return nil
}
