package store

import (
	"context"
	"sync"
	"time"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
)

type memoryStore struct {
	items map[string]aggregate.CacheEntry
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemory builds an in-memory metadata store. Entries live until deleted or
// swept by CleanupExpired.
func NewMemory() inter.MetadataStore {
	return &memoryStore{
		items: make(map[string]aggregate.CacheEntry),
		now:   time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (aggregate.CacheEntry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	entry, ok := s.items[key]
	return entry, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, entry aggregate.CacheEntry) error {
	entry.Key = key
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.items[key] = entry
	return nil
}

func (s *memoryStore) Update(_ context.Context, key string, patch aggregate.URLPatch) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	entry, ok := s.items[key]
	if !ok {
		return notFound(key)
	}
	s.items[key] = entry.Apply(patch)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.items, key)
	return nil
}

func (s *memoryStore) CleanupExpired(context.Context) ([]aggregate.CacheEntry, error) {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var removed []aggregate.CacheEntry
	for key, entry := range s.items {
		if entry.Stale(now) {
			removed = append(removed, entry)
			delete(s.items, key)
		}
	}
	return removed, nil
}

func (s *memoryStore) Stats(context.Context) (map[string]any, error) {
	now := s.now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	urlExpired := 0
	for _, entry := range s.items {
		if !entry.URLValid(now) {
			urlExpired++
		}
	}
	return map[string]any{
		"type":        DriverMemory,
		"total":       len(s.items),
		"url_expired": urlExpired,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
