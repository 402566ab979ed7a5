package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/nimbus/internal/weather"
)

var (
	// ErrClosed is returned by stores that have been closed.
	ErrClosed = errors.New("store is closed")
)

// entryHistory holds the entries of one (category, key), ordered by FetchedAt
// ascending. Entries with equal FetchedAt keep write order, so the last element
// is always the latest.
type entryHistory struct {
	entries []weather.CacheEntry
}

// insert places e after every entry that is not newer than it.
func (h *entryHistory) insert(e weather.CacheEntry) {
	i := len(h.entries)
	for i > 0 && h.entries[i-1].FetchedAt.After(e.FetchedAt) {
		i--
	}
	h.entries = append(h.entries, weather.CacheEntry{})
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = e
}

// purge drops entries with FetchedAt at or before cutoff and returns how many went.
func (h *entryHistory) purge(cutoff time.Time) int {
	i := 0
	for ; i < len(h.entries); i++ {
		if h.entries[i].FetchedAt.After(cutoff) {
			break
		}
	}
	h.entries = h.entries[i:]
	return i
}

func (h *entryHistory) latest() (weather.CacheEntry, bool) {
	if len(h.entries) == 0 {
		return weather.CacheEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: category|location key
	data map[string]*entryHistory

	// max number of entries kept per (category, key); 0 = unlimited
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*entryHistory),
		maxHistory: maxHistory,
	}
}

func compositeKey(category weather.Category, key string) string {
	return string(category) + "|" + key
}

// Write stores entry as the newest for its (category, key) and enforces the history cap.
func (s *MemoryStore) Write(ctx context.Context, entry weather.CacheEntry) error {
	k := compositeKey(entry.Category, entry.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[k]
	if !ok {
		h = &entryHistory{}
		s.data[k] = h
	}
	h.insert(entry)

	if s.maxHistory > 0 && len(h.entries) > s.maxHistory {
		over := len(h.entries) - s.maxHistory
		h.entries = h.entries[over:]
	}
	return nil
}

// ReadLatest returns the most recent entry for (category, key).
func (s *MemoryStore) ReadLatest(ctx context.Context, category weather.Category, key string) (weather.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[compositeKey(category, key)]
	if !ok {
		return weather.CacheEntry{}, false, nil
	}
	e, ok := h.latest()
	return e, ok, nil
}

// PurgeExpired removes entries that are expired at now.
func (s *MemoryStore) PurgeExpired(ctx context.Context, category weather.Category, key string, now time.Time) (int, error) {
	k := compositeKey(category, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[k]
	if !ok {
		return 0, nil
	}
	n := h.purge(weather.ExpiryCutoff(category, now))
	if len(h.entries) == 0 {
		delete(s.data, k)
	}
	return n, nil
}

// Count returns how many entries are held for (category, key), expired or not.
func (s *MemoryStore) Count(category weather.Category, key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.data[compositeKey(category, key)]; ok {
		return len(h.entries)
	}
	return 0
}
