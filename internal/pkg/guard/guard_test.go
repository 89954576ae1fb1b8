package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemorySeen(t *testing.T) {
	c := &clock{now: time.Unix(1700000000, 0)}
	g := newMemoryGuard(time.Minute, time.Minute, c.Now)
	ctx := context.Background()

	seen, err := g.Seen(ctx, "update:1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, _ = g.Seen(ctx, "update:1")
	assert.True(t, seen)

	c.Advance(2 * time.Minute)
	seen, _ = g.Seen(ctx, "update:1")
	assert.False(t, seen)
}

func TestMemoryAcquire(t *testing.T) {
	c := &clock{now: time.Unix(1700000000, 0)}
	g := newMemoryGuard(time.Minute, 30*time.Second, c.Now)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "order:7")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "order:7")
	assert.ErrorIs(t, err, ErrHeld)

	_, err = g.Acquire(ctx, "order:8")
	assert.NoError(t, err)

	release()
	again, err := g.Acquire(ctx, "order:7")
	require.NoError(t, err)

	// an expired holder's release must not drop the new holder's lock
	c.Advance(time.Minute)
	third, err := g.Acquire(ctx, "order:7")
	require.NoError(t, err)
	again()
	_, err = g.Acquire(ctx, "order:7")
	assert.ErrorIs(t, err, ErrHeld)
	third()
}

func TestMemoryAcquireConcurrent(t *testing.T) {
	g := NewMemory(time.Minute, time.Minute)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(context.Background(), "order:1"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestNewWithoutAddrUsesMemory(t *testing.T) {
	g, err := New(Options{})
	require.NoError(t, err)
	_, ok := g.(*memoryGuard)
	assert.True(t, ok)
}

func TestSeenUpdate(t *testing.T) {
	ctx := context.Background()
	g := NewMemory(time.Minute, time.Minute)

	dup, err := SeenUpdate(ctx, g, 0)
	require.NoError(t, err)
	assert.False(t, dup)
	dup, _ = SeenUpdate(ctx, g, 0)
	assert.False(t, dup)

	dup, _ = SeenUpdate(ctx, g, 77)
	assert.False(t, dup)
	dup, _ = SeenUpdate(ctx, g, 77)
	assert.True(t, dup)

	seen, _ := g.Seen(ctx, "tg:update:77")
	assert.True(t, seen)
}
