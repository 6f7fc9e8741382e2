package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/Clark-Hu/movieweb/internal/metrics"
)

// DefaultMaxSessions caps how many sessions a MemoryStore holds.
const DefaultMaxSessions = 10000

type memoryEntry struct {
	titles  []string
	expires time.Time
	touched time.Time
}

// MemoryStore keeps histories in process. Histories are lost on restart and
// are not shared between replicas.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	max         int
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
}

// NewMemoryStore builds a store remembering up to max titles per session.
// A positive ttl expires sessions idle for that long.
func NewMemoryStore(max int, ttl time.Duration) *MemoryStore {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &MemoryStore{
		entries:     make(map[string]memoryEntry),
		max:         max,
		maxSessions: DefaultMaxSessions,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *MemoryStore) Exclusions(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(sessionID)
	if !ok {
		return nil, nil
	}
	return append([]string(nil), entry.titles...), nil
}

func (s *MemoryStore) RecordShown(ctx context.Context, sessionID string, titles []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.lookup(sessionID)
	merged, added := merge(entry.titles, titles, s.max)
	if added == 0 {
		return 0, nil
	}
	if !found {
		s.makeRoom()
	}
	now := s.now()
	entry.titles = merged
	entry.touched = now
	if s.ttl > 0 {
		entry.expires = now.Add(s.ttl)
	}
	s.entries[sessionID] = entry
	metrics.DiscoveryTitlesRecorded.WithLabelValues("memory").Add(float64(added))
	return added, nil
}

// makeRoom drops expired sessions once the store is full and, if that is not
// enough, the least recently written one. mu must be held.
func (s *MemoryStore) makeRoom() {
	if len(s.entries) < s.maxSessions {
		return
	}
	now := s.now()
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.entries, id)
			continue
		}
		if oldestID == "" || e.touched.Before(oldest) {
			oldestID, oldest = id, e.touched
		}
	}
	if len(s.entries) >= s.maxSessions && oldestID != "" {
		delete(s.entries, oldestID)
	}
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(sessionID string) (memoryEntry, bool) {
	entry, ok := s.entries[sessionID]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.entries, sessionID)
		return memoryEntry{}, false
	}
	return entry, true
}
