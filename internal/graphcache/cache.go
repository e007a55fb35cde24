// Package graphcache keeps one compiled machine per (session, task type).
//
// Entries live for a fixed window from creation. A stale entry is rebuilt on
// the next Get, and a background sweep drops stale entries nobody asked for.
// Dropping an entry is always safe: durable task state lives in the
// checkpoint store, and a machine already handed to a caller keeps working.
package graphcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/adapters/memory"
	"github.com/aretw0/errand/pkg/domain"
)

const (
	// DefaultTTL is how long a compiled machine is reused.
	DefaultTTL = 30 * time.Minute

	// DefaultSweepInterval is how often Run drops stale entries.
	DefaultSweepInterval = 5 * time.Minute
)

// Builder compiles a machine for a task type.
type Builder interface {
	Build(taskType domain.TaskType, opts ...runtime.Option) (*runtime.Machine, error)
}

// Key identifies a cache entry.
type Key struct {
	SessionID string
	TaskType  domain.TaskType
}

type entry struct {
	machine   *runtime.Machine
	createdAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	builder Builder
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	observe func(size int)

	mu      sync.Mutex
	entries map[Key]*entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the reuse window.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithSizeObserver is called with the entry count after every change.
func WithSizeObserver(fn func(size int)) Option {
	return func(c *Cache) { c.observe = fn }
}

// New creates an empty cache over b.
func New(b Builder, opts ...Option) *Cache {
	c := &Cache{
		builder: b,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the machine for the key, compiling a new one bound to its own
// in-memory checkpointer on a miss or when the cached one has aged out.
func (c *Cache) Get(sessionID string, taskType domain.TaskType) (*runtime.Machine, error) {
	key := Key{SessionID: sessionID, TaskType: taskType}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if now.Sub(e.createdAt) < c.ttl {
			return e.machine, nil
		}
		c.logger.Debug("graph cache entry expired", "session_id", sessionID, "task_type", taskType, "age", now.Sub(e.createdAt))
		delete(c.entries, key)
	}

	m, err := c.builder.Build(taskType, runtime.WithCheckpointer(memory.NewStore()))
	if err != nil {
		c.changed()
		return nil, err
	}
	c.entries[key] = &entry{machine: m, createdAt: now}
	c.changed()
	return m, nil
}

// Sweep drops every entry older than the TTL and reports how many went.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("graph cache swept", "removed", removed, "remaining", len(c.entries))
		c.changed()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of cached machines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.changed()
}

// changed must be called with mu held.
func (c *Cache) changed() {
	if c.observe != nil {
		c.observe(len(c.entries))
	}
}
