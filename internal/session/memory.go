package session

import (
	"context"
	"sync"
	"time"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

type memoryEntry struct {
	history    []domain.HistoryEntry
	value      string
	expiration time.Time
}

// MemoryStore is a thread-safe in-process session store with TTL support,
// for development and tests where Redis is not configured. State is lost on
// restart.
type MemoryStore struct {
	data   map[string]memoryEntry
	window int
	mutex  sync.RWMutex
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data:   make(map[string]memoryEntry),
		window: defaultHistoryWindow,
	}

	// Remove expired entries every 10 minutes.
	go store.cleanupExpired()

	return store
}

func (s *MemoryStore) AppendHistory(ctx context.Context, sessionID, userMsg, assistantMsg string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := historyKey(sessionID)
	entry := s.data[key]
	entry.history = append(entry.history, domain.HistoryEntry{
		User:      userMsg,
		Assistant: assistantMsg,
		At:        time.Now().UTC(),
	})
	if len(entry.history) > s.window {
		entry.history = entry.history[len(entry.history)-s.window:]
	}
	entry.expiration = time.Now().Add(historyTTL)
	s.data[key] = entry
	return nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.data[historyKey(sessionID)]
	if !exists || time.Now().After(entry.expiration) {
		return nil, nil
	}
	out := make([]domain.HistoryEntry, len(entry.history))
	copy(out, entry.history)
	return out, nil
}

func (s *MemoryStore) CacheUserName(ctx context.Context, userID, name string) error {
	s.set(nameKey(userID), name, nameTTL)
	return nil
}

func (s *MemoryStore) UserName(ctx context.Context, userID string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.data[nameKey(userID)]
	if !exists || time.Now().After(entry.expiration) {
		return "", domain.ErrSessionMiss
	}
	return entry.value, nil
}

func (s *MemoryStore) MarkBotThread(ctx context.Context, threadTS string) error {
	s.set(threadKey(threadTS), "1", threadTTL)
	return nil
}

func (s *MemoryStore) IsBotThread(ctx context.Context, threadTS string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.data[threadKey(threadTS)]
	if !exists || time.Now().After(entry.expiration) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = memoryEntry{value: value, expiration: time.Now().Add(ttl)}
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mutex.Lock()
		now := time.Now()
		for key, entry := range s.data {
			if now.After(entry.expiration) {
				delete(s.data, key)
			}
		}
		s.mutex.Unlock()
	}
}
