package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/registry"
)

func newDash() *dashboard.Dashboard {
	return dashboard.New(nil, registry.MustLoad(), dashboard.Options{})
}

func TestSessionStore_BasicGetAdd(t *testing.T) {
	store := NewSessionStore(10, time.Hour)

	assert.Nil(t, store.Get("missing"))

	d := newDash()
	id := store.Add(d)
	assert.NotEmpty(t, id)
	assert.Same(t, d, store.Get(id))
}

func TestSessionStore_IdleExpiration(t *testing.T) {
	store := NewSessionStore(10, 30*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	id := store.Add(newDash())

	now = now.Add(20 * time.Minute)
	assert.NotNil(t, store.Get(id), "use refreshes the idle timer")

	now = now.Add(20 * time.Minute)
	assert.NotNil(t, store.Get(id))

	now = now.Add(31 * time.Minute)
	assert.Nil(t, store.Get(id))

	store.mu.RLock()
	_, exists := store.entries[id]
	store.mu.RUnlock()
	assert.False(t, exists)
}

func TestSessionStore_LRUEviction(t *testing.T) {
	store := NewSessionStore(3, time.Hour)

	a := store.Add(newDash())
	b := store.Add(newDash())
	c := store.Add(newDash())

	// "a" becomes most recent, so "b" is evicted.
	store.Get(a)
	d := store.Add(newDash())

	assert.NotNil(t, store.Get(a))
	assert.Nil(t, store.Get(b))
	assert.NotNil(t, store.Get(c))
	assert.NotNil(t, store.Get(d))
	assert.Equal(t, int64(1), store.Stats().Evictions)
}

func TestSessionStore_Prune(t *testing.T) {
	store := NewSessionStore(10, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Add(newDash())
	store.Add(newDash())
	now = now.Add(2 * time.Minute)
	keep := store.Add(newDash())

	assert.Equal(t, 2, store.Prune())
	assert.Equal(t, 1, store.Stats().Sessions)
	assert.NotNil(t, store.Get(keep))
}

func TestSessionStore_ZeroTTLNeverExpires(t *testing.T) {
	store := NewSessionStore(2, 0)
	now := time.Now()
	store.now = func() time.Time { return now }

	id := store.Add(newDash())
	now = now.Add(24 * 365 * time.Hour)
	assert.NotNil(t, store.Get(id))
	assert.Zero(t, store.Prune())
}

func TestSessionStore_Remove(t *testing.T) {
	store := NewSessionStore(5, time.Hour)
	id := store.Add(newDash())

	assert.True(t, store.Remove(id))
	assert.False(t, store.Remove(id))
	assert.Nil(t, store.Get(id))
}

func TestSessionStore_Stats(t *testing.T) {
	store := NewSessionStore(5, time.Hour)
	id := store.Add(newDash())

	store.Get(id)
	store.Get(id)
	store.Get("missing")

	stats := store.Stats()
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 5, stats.MaxSessions)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	store := NewSessionStore(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := store.Add(newDash())
			for j := 0; j < 10; j++ {
				store.Get(id)
			}
			store.Stats()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, store.Stats().Sessions)
}
