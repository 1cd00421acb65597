package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// RedisStore keeps conversation state in Redis so restarts and multiple
// replicas see the same sessions. History lives in a capped list per
// conversation; names and thread markers are plain keys with TTLs.
type RedisStore struct {
	client *redis.Client
	window int
	logger *zap.Logger
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	logger.Info("session store connected", zap.String("addr", addr))
	return &RedisStore{client: client, window: defaultHistoryWindow, logger: logger}, nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, window: defaultHistoryWindow, logger: logger}
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// AppendHistory records one exchange and trims the conversation to the
// configured window.
func (s *RedisStore) AppendHistory(ctx context.Context, sessionID, userMsg, assistantMsg string) error {
	entry := domain.HistoryEntry{User: userMsg, Assistant: assistantMsg, At: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	key := historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.window), -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history for %s: %w", sessionID, err)
	}
	return nil
}

// History returns the conversation window, oldest first.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", sessionID, err)
	}

	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("dropping undecodable history entry",
				zap.String("session", sessionID), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CacheUserName stores a user's display name.
func (s *RedisStore) CacheUserName(ctx context.Context, userID, name string) error {
	if err := s.client.Set(ctx, nameKey(userID), name, nameTTL).Err(); err != nil {
		return fmt.Errorf("caching name for %s: %w", userID, err)
	}
	return nil
}

// UserName returns the cached display name, ErrSessionMiss when absent.
func (s *RedisStore) UserName(ctx context.Context, userID string) (string, error) {
	name, err := s.client.Get(ctx, nameKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrSessionMiss
	}
	if err != nil {
		return "", fmt.Errorf("reading name for %s: %w", userID, err)
	}
	return name, nil
}

// MarkBotThread records that the bot started or joined a thread.
func (s *RedisStore) MarkBotThread(ctx context.Context, threadTS string) error {
	if err := s.client.Set(ctx, threadKey(threadTS), "1", threadTTL).Err(); err != nil {
		return fmt.Errorf("marking thread %s: %w", threadTS, err)
	}
	return nil
}

// IsBotThread reports whether the bot participates in the thread.
func (s *RedisStore) IsBotThread(ctx context.Context, threadTS string) (bool, error) {
	n, err := s.client.Exists(ctx, threadKey(threadTS)).Result()
	if err != nil {
		return false, fmt.Errorf("checking thread %s: %w", threadTS, err)
	}
	return n > 0, nil
}
