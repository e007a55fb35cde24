package graphcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/errand/internal/graphcache"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/adapters/memory"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBuilder struct {
	mu     sync.Mutex
	builds int
	fail   bool
}

func (b *countingBuilder) Build(_ domain.TaskType, opts ...runtime.Option) (*runtime.Machine, error) {
	b.mu.Lock()
	b.builds++
	b.mu.Unlock()
	if b.fail {
		return nil, errors.New("boom")
	}
	done := func(context.Context, *domain.AgentState) (domain.Update, error) {
		return domain.Update{Phase: domain.Ptr(domain.PhaseComplete)}, nil
	}
	return runtime.NewGraph().
		AddNode(domain.NodeClarification, done, runtime.Otherwise(domain.Terminate)).
		Compile(domain.NodeClarification, opts...)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newCache(b graphcache.Builder, clk *clock, opts ...graphcache.Option) *graphcache.Cache {
	opts = append([]graphcache.Option{graphcache.WithClock(clk.Now), graphcache.WithTTL(30 * time.Minute)}, opts...)
	return graphcache.New(b, opts...)
}

func TestCache_ReusesWithinTTL(t *testing.T) {
	b := &countingBuilder{}
	clk := &clock{now: time.Unix(0, 0)}
	c := newCache(b, clk)

	first, err := c.Get("s1", domain.TaskMedicine)
	require.NoError(t, err)
	clk.Advance(29 * time.Minute)
	second, err := c.Get("s1", domain.TaskMedicine)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, b.builds)
}

func TestCache_KeysBySessionAndType(t *testing.T) {
	b := &countingBuilder{}
	c := newCache(b, &clock{now: time.Unix(0, 0)})

	a, _ := c.Get("s1", domain.TaskMedicine)
	other, _ := c.Get("s1", domain.TaskTravel)
	third, _ := c.Get("s2", domain.TaskMedicine)

	assert.NotSame(t, a, other)
	assert.NotSame(t, a, third)
	assert.Equal(t, 3, c.Len())
}

func TestCache_StaleEntryIsRebuilt(t *testing.T) {
	b := &countingBuilder{}
	clk := &clock{now: time.Unix(0, 0)}
	c := newCache(b, clk)

	old, err := c.Get("s1", domain.TaskGeneral)
	require.NoError(t, err)

	// Durable state lives outside the cache.
	durable := memory.NewStore()
	require.NoError(t, durable.Save(context.Background(), domain.Checkpoint{TaskID: "t1", Phase: domain.PhaseExecution, Progress: 60}))

	clk.Advance(31 * time.Minute)
	fresh, err := c.Get("s1", domain.TaskGeneral)
	require.NoError(t, err)

	assert.NotSame(t, old, fresh)
	assert.Equal(t, 2, b.builds)
	assert.Equal(t, 1, c.Len())

	cp, err := durable.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseExecution, cp.Phase)
	assert.Equal(t, 60.0, cp.Progress)

	// A machine handed out before eviction still runs.
	s := domain.NewAgentState("s1", "t1", domain.TaskGeneral)
	require.NoError(t, old.Run(context.Background(), s, old.Entry()))
	assert.Equal(t, domain.PhaseComplete, s.CurrentPhase)
}

func TestCache_SweepDropsOnlyStaleEntries(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	var sizes []int
	c := newCache(&countingBuilder{}, clk, graphcache.WithSizeObserver(func(n int) { sizes = append(sizes, n) }))

	_, _ = c.Get("old", domain.TaskGeneral)
	clk.Advance(20 * time.Minute)
	_, _ = c.Get("new", domain.TaskGeneral)
	clk.Advance(15 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []int{1, 2, 1}, sizes)

	clk.Advance(30 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Zero(t, c.Len())
}

func TestCache_BuildErrorIsNotCached(t *testing.T) {
	b := &countingBuilder{fail: true}
	c := newCache(b, &clock{now: time.Unix(0, 0)})

	_, err := c.Get("s1", domain.TaskGeneral)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	b.fail = false
	_, err = c.Get("s1", domain.TaskGeneral)
	require.NoError(t, err)
	assert.Equal(t, 2, b.builds)
}

func TestCache_EntriesHaveTheirOwnCheckpointer(t *testing.T) {
	c := newCache(&countingBuilder{}, &clock{now: time.Unix(0, 0)})
	m1, _ := c.Get("s1", domain.TaskGeneral)
	m2, _ := c.Get("s2", domain.TaskGeneral)

	s := domain.NewAgentState("s1", "t1", domain.TaskGeneral)
	require.NoError(t, m1.Run(context.Background(), s, m1.Entry()))

	cp, err := m1.Snapshot(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, cp.Phase)

	_, err = m2.Snapshot(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestCache_RunStopsWithContext(t *testing.T) {
	c := graphcache.New(&countingBuilder{}, graphcache.WithTTL(time.Millisecond))
	_, _ = c.Get("s1", domain.TaskGeneral)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
