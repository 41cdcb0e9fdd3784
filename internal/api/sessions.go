package api

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/equity-map/internal/dashboard"
)

// SessionStore is a concurrent-safe LRU of dashboards with idle expiration.
type SessionStore struct {
	mu          sync.RWMutex
	entries     map[string]*sessionEntry
	order       []string // LRU order: front=oldest, back=newest
	maxSessions int
	ttl         time.Duration
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	now         func() time.Time
}

type sessionEntry struct {
	dash     *dashboard.Dashboard
	lastUsed time.Time
}

// SessionStats contains store statistics.
type SessionStats struct {
	Sessions    int     `json:"sessions"`
	MaxSessions int     `json:"max_sessions"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
}

// NewSessionStore creates a store holding at most maxSessions dashboards,
// each dropped after ttl without use. A zero ttl never expires.
func NewSessionStore(maxSessions int, ttl time.Duration) *SessionStore {
	return &SessionStore{
		entries:     make(map[string]*sessionEntry),
		maxSessions: max(maxSessions, 1),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Get returns a session's dashboard and refreshes its idle timer. Returns
// nil on miss or expiration.
func (s *SessionStore) Get(id string) *dashboard.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		s.misses.Add(1)
		return nil
	}

	if s.expired(entry) {
		delete(s.entries, id)
		s.removeFromOrder(id)
		s.misses.Add(1)
		return nil
	}

	entry.lastUsed = s.now()
	s.removeFromOrder(id)
	s.order = append(s.order, id)
	s.hits.Add(1)
	return entry.dash
}

// Add stores d under a new session id, evicting the least recently used
// session if at capacity.
func (s *SessionStore) Add(d *dashboard.Dashboard) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	for len(s.entries) >= s.maxSessions && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
		s.evictions.Add(1)
	}

	s.entries[id] = &sessionEntry{dash: d, lastUsed: s.now()}
	s.order = append(s.order, id)
	return id
}

// Remove drops a session. Reports whether it existed.
func (s *SessionStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	s.removeFromOrder(id)
	return true
}

// Prune drops every expired session and returns how many were dropped.
func (s *SessionStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked()
}

func (s *SessionStore) pruneLocked() int {
	if s.ttl <= 0 {
		return 0
	}
	var remaining []string
	dropped := 0
	for _, id := range s.order {
		if s.expired(s.entries[id]) {
			delete(s.entries, id)
			dropped++
		} else {
			remaining = append(remaining, id)
		}
	}
	s.order = remaining
	return dropped
}

func (s *SessionStore) expired(e *sessionEntry) bool {
	return s.ttl > 0 && s.now().Sub(e.lastUsed) > s.ttl
}

// Stats returns store statistics.
func (s *SessionStore) Stats() SessionStats {
	s.mu.RLock()
	sessions := len(s.entries)
	maxSessions := s.maxSessions
	s.mu.RUnlock()

	hits := s.hits.Load()
	misses := s.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return SessionStats{
		Sessions:    sessions,
		MaxSessions: maxSessions,
		Hits:        hits,
		Misses:      misses,
		Evictions:   s.evictions.Load(),
		HitRate:     hitRate,
	}
}

// removeFromOrder removes an id from the LRU order slice.
func (s *SessionStore) removeFromOrder(id string) {
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
