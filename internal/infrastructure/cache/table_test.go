package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTable_ExpiresAfterWrite(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	table := NewTable[string, int](clock.Now)

	table.Set("a", 1, time.Minute)

	clock.Advance(59 * time.Second)
	v, ok := table.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(time.Second)
	_, ok = table.Get("a")
	assert.False(t, ok, "entry is a miss at exactly write time plus ttl")
}

func TestTable_ReadsDoNotExtendExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	table := NewTable[string, int](clock.Now)
	table.Set("a", 1, time.Minute)

	for range 5 {
		clock.Advance(10 * time.Second)
		_, ok := table.Get("a")
		require.True(t, ok)
	}
	clock.Advance(10 * time.Second)

	_, ok := table.Get("a")
	assert.False(t, ok)
}

func TestTable_ClearRejectsStaleGeneration(t *testing.T) {
	table := NewTable[string, int](nil)
	gen := table.Generation()
	table.Set("a", 1, time.Hour)

	assert.Equal(t, 1, table.Clear())
	assert.False(t, table.SetIfGeneration("b", 2, time.Hour, gen))
	assert.True(t, table.SetIfGeneration("b", 3, time.Hour, table.Generation()))

	_, ok := table.Get("a")
	assert.False(t, ok)
	v, ok := table.Get("b")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, int64(1), table.Stats().Dropped)
}

func TestTable_CleanupExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	table := NewTable[string, int](clock.Now)
	table.Set("short", 1, time.Second)
	table.Set("long", 2, time.Hour)

	clock.Advance(time.Minute)

	assert.Equal(t, 1, table.CleanupExpired())
	assert.Equal(t, 1, table.Len())
	stats := table.Stats()
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, 1, stats.Items)
}

func TestTable_Stats(t *testing.T) {
	table := NewTable[string, int](nil)
	table.Set("a", 1, time.Hour)

	table.Get("a")
	table.Get("a")
	table.Get("missing")

	stats := table.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}
