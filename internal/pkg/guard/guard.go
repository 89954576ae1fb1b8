// Package guard provides short-lived keys shared across processes: "seen
// once" markers for webhook dedup and exclusive per-order locks. Redis backs
// both when configured; otherwise an in-process map does.
package guard

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another holder owns the key.
var ErrHeld = errors.New("guard: key is held")

// Guard marks and locks keys.
type Guard interface {
	// Seen marks key and reports whether it was already marked.
	Seen(ctx context.Context, key string) (bool, error)

	// Acquire takes an exclusive lock on key until release is called or
	// the lock TTL passes. It returns ErrHeld when the lock is taken.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Options configures New.
type Options struct {
	Addr     string
	Password string
	DB       int
	SeenTTL  time.Duration
	LockTTL  time.Duration
	Prefix   string
}

func (o *Options) defaults() {
	if o.SeenTTL <= 0 {
		o.SeenTTL = 10 * time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 2 * time.Minute
	}
	if o.Prefix == "" {
		o.Prefix = "vpnshop"
	}
}

// New builds a Redis guard and falls back to in-memory when Addr is empty
// or Redis does not answer. The fallback is returned together with the
// ping error.
func New(opts Options) (Guard, error) {
	opts.defaults()
	if opts.Addr == "" {
		return NewMemory(opts.SeenTTL, opts.LockTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return NewMemory(opts.SeenTTL, opts.LockTTL), err
	}

	return &redisGuard{
		client:  client,
		prefix:  opts.Prefix,
		seenTTL: opts.SeenTTL,
		lockTTL: opts.LockTTL,
	}, nil
}

type redisGuard struct {
	client  *redis.Client
	prefix  string
	seenTTL time.Duration
	lockTTL time.Duration
}

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *redisGuard) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+":seen:"+key, "1", g.seenTTL).Result()
	if err != nil {
		return false, err
	}
	// false => already exists => duplicate
	return !ok, nil
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := g.prefix + ":lock:" + key
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, lockKey, token, g.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.client, []string{lockKey}, token).Err()
	}, nil
}

type memoryGuard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	locks   map[string]lockEntry
	seenTTL time.Duration
	lockTTL time.Duration
	nextGC  time.Time
	now     func() time.Time
}

type lockEntry struct {
	token   string
	expires time.Time
}

// NewMemory returns an in-process guard.
func NewMemory(seenTTL, lockTTL time.Duration) Guard {
	return newMemoryGuard(seenTTL, lockTTL, time.Now)
}

func newMemoryGuard(seenTTL, lockTTL time.Duration, now func() time.Time) *memoryGuard {
	return &memoryGuard{
		seen:    make(map[string]time.Time),
		locks:   make(map[string]lockEntry),
		seenTTL: seenTTL,
		lockTTL: lockTTL,
		nextGC:  now().Add(seenTTL),
		now:     now,
	}
}

func (g *memoryGuard) Seen(_ context.Context, key string) (bool, error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.seen[key]; ok && exp.After(now) {
		return true, nil
	}

	g.seen[key] = now.Add(g.seenTTL)
	if now.After(g.nextGC) {
		for k, exp := range g.seen {
			if exp.Before(now) {
				delete(g.seen, k)
			}
		}
		g.nextGC = now.Add(g.seenTTL)
	}

	return false, nil
}

func (g *memoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.locks[key]; ok && l.expires.After(now) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	g.locks[key] = lockEntry{token: token, expires: now.Add(g.lockTTL)}

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if l, ok := g.locks[key]; ok && l.token == token {
			delete(g.locks, key)
		}
	}, nil
}

// SeenUpdate marks a Telegram update_id. Zero ids are never marked.
func SeenUpdate(ctx context.Context, g Guard, updateID int64) (bool, error) {
	if updateID == 0 {
		return false, nil
	}
	return g.Seen(ctx, "tg:update:"+strconv.FormatInt(updateID, 10))
}
