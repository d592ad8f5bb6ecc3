package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_IncrWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	m := newMemoryStore(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := m.Incr(ctx, "rl:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	clock.Advance(59 * time.Second)
	n, _ := m.Incr(ctx, "rl:1.2.3.4", time.Minute)
	assert.Equal(t, int64(4), n)

	clock.Advance(time.Second)
	n, _ = m.Incr(ctx, "rl:1.2.3.4", time.Minute)
	assert.Equal(t, int64(1), n, "window restarts after expiry")
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	m := newMemoryStore(time.Now)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Incr(ctx, "k", time.Minute)
		}()
	}
	wg.Wait()
	n, _ := m.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(51), n)
}

func TestMemoryStore_JSONCache(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newMemoryStore(clock.Now)
	ctx := context.Background()

	type class struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	var out class
	found, err := GetJSON(ctx, m, "class:1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, m, "class:1", class{ID: 1, Name: "IELTS Prep"}, time.Minute))
	found, err = GetJSON(ctx, m, "class:1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "IELTS Prep", out.Name)

	clock.Advance(2 * time.Minute)
	found, _ = GetJSON(ctx, m, "class:1", &out)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, m, "class:2", class{ID: 2}, 0))
	require.NoError(t, m.Delete(ctx, "class:2"))
	found, _ = GetJSON(ctx, m, "class:2", &out)
	assert.False(t, found)
}
