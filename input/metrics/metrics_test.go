package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/plugin"
)

func TestNew_DefaultsEnableAllCategories(t *testing.T) {
	src, err := New("host_metrics", plugin.Args{}, plugin.Dependencies{})
	require.NoError(t, err)

	in := src.(*Input)
	require.Len(t, in.collectors, 4)

	intervals := map[string]time.Duration{}
	for _, c := range in.collectors {
		intervals[c.name] = c.interval
	}
	assert.Equal(t, 5*time.Second, intervals["cpu"])
	assert.Equal(t, 5*time.Second, intervals["memory"])
	assert.Equal(t, 30*time.Second, intervals["disk"])
	assert.Equal(t, 5*time.Second, intervals["network"])
}

func TestNew_MetricSelection(t *testing.T) {
	src, err := New("m", plugin.Args{"metrics": []any{"cpu", "memory"}}, plugin.Dependencies{})
	require.NoError(t, err)

	in := src.(*Input)
	assert.Len(t, in.collectors, 2)
}

func TestNew_UnknownMetricRejected(t *testing.T) {
	_, err := New("m", plugin.Args{"metrics": []any{"gpu"}}, plugin.Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric "gpu"`)
}

func TestNew_IntervalBounds(t *testing.T) {
	_, err := New("m", plugin.Args{"cpu_interval": int64(4)}, plugin.Dependencies{})
	assert.Error(t, err)

	_, err = New("m", plugin.Args{"disk_interval": int64(3601)}, plugin.Dependencies{})
	assert.Error(t, err)

	_, err = New("m", plugin.Args{"net_interval": int64(3600)}, plugin.Dependencies{})
	assert.NoError(t, err)
}

func TestCollectMemory_FieldShape(t *testing.T) {
	fields, err := collectMemory(context.Background())
	require.NoError(t, err)
	assert.Contains(t, fields, "memory.total_bytes")
	assert.Contains(t, fields, "memory.used_percent")
}
