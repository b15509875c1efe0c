package store

import (
	"errors"
	"sync"
	"time"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

var (
	// ErrNotFound is returned when no readings are cached for a tag.
	ErrNotFound = errors.New("no cached readings for tag")
)

// readingHistory holds a time-ordered list of refreshes for one tag.
type readingHistory struct {
	Sets []telemetry.CurrentSet
}

// MemoryStore is a concurrency-safe in-memory cache of current reading
// sets, keyed by tag.
type MemoryStore struct {
	mu sync.RWMutex

	// key: tag, value: refresh history
	data map[string]*readingHistory

	// retention configuration
	maxHistory int           // max number of refreshes per tag
	maxAge     time.Duration // optional max age for refreshes
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*readingHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveCurrent appends a refresh for a tag and enforces retention.
func (s *MemoryStore) SaveCurrent(tag string, set telemetry.CurrentSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[tag]
	if !ok {
		history = &readingHistory{}
		s.data[tag] = history
	}

	history.Sets = append(history.Sets, set)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Sets) > s.maxHistory {
		over := len(history.Sets) - s.maxHistory
		history.Sets = history.Sets[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Sets); i++ {
			if !history.Sets[i].FetchedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.Sets) {
			history.Sets = history.Sets[i:]
		}
	}
}

// Current returns the most recent refresh for a tag.
func (s *MemoryStore) Current(tag string) (telemetry.CurrentSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[tag]
	if !ok || len(history.Sets) == 0 {
		return telemetry.CurrentSet{}, ErrNotFound
	}
	return history.Sets[len(history.Sets)-1], nil
}

// History returns all refreshes for a tag fetched between from and to
// (inclusive).
func (s *MemoryStore) History(tag string, from, to time.Time) ([]telemetry.CurrentSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[tag]
	if !ok || len(history.Sets) == 0 {
		return nil, ErrNotFound
	}

	var result []telemetry.CurrentSet
	for _, set := range history.Sets {
		if !set.FetchedAt.Before(from) && !set.FetchedAt.After(to) {
			result = append(result, set)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
