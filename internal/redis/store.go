package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/session"
	"github.com/redis/go-redis/v9"
)

const scanCount = 200

// SessionStore keeps conversations in Redis as JSON with a sliding TTL
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionStore creates a new Redis conversation store
func NewSessionStore(cfg *config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewSessionStoreWithClient(client, ttl, logger), nil
}

// NewSessionStoreWithClient wraps an existing client
func NewSessionStoreWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *SessionStore) Close() error {
	return s.client.Close()
}

// Ping checks the connection for the readiness check
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the Redis key for a conversation
func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:playfab", sessionID)
}

// Get loads a conversation
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Conversation, error) {
	val, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return decode(val)
}

// Put stores a conversation and refreshes its TTL
func (s *SessionStore) Put(ctx context.Context, conv *session.Conversation) error {
	if conv == nil || conv.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(conv.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("setting session: %w", err)
	}
	return nil
}

// Delete removes a conversation
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// List returns every live conversation. Keys that expire between the scan and the
// read are skipped.
func (s *SessionStore) List(ctx context.Context) ([]*session.Conversation, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, sessionKey("*"), scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	convs := make([]*session.Conversation, 0, len(keys))
	for i, cmd := range cmds {
		val, err := cmd.Bytes()
		if err != nil {
			continue
		}
		conv, err := decode(val)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "key", keys[i], "error", err)
			continue
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func decode(data []byte) (*session.Conversation, error) {
	var conv session.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if conv.State == nil {
		conv.State = session.NewState()
	}
	return &conv, nil
}
