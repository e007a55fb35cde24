package metrics_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/errand/internal/metrics"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HooksRecordEvents(t *testing.T) {
	m := metrics.New()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: domain.NodeExecution})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: domain.NodeExecution})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{Node: domain.NodeExecution, Duration: time.Millisecond})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "web_search", Duration: time.Millisecond})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "web_search", IsError: true})
	m.ObserveBatch(3)
	m.SetCacheEntries(4)
	m.CheckpointFailed("save")

	reg := m.Registry()
	count, err := testutil.GatherAndCount(reg, "errand_node_visits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(reg, "errand_tool_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `errand_node_visits_total{node="execution"} 2`)
	assert.Contains(t, body, "errand_graph_cache_entries 4")
	assert.Contains(t, body, `errand_checkpoint_failures_total{op="save"} 1`)
	assert.Contains(t, body, "errand_batch_size_count 1")
}
