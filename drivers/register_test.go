package drivers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/plugin"
)

func TestRegisterAll(t *testing.T) {
	registry := plugin.NewRegistry()
	require.NoError(t, RegisterAll(registry))

	assert.Equal(t, []string{"file", "journald", "metrics", "stdin"}, registry.SourceTypes())
	assert.Equal(t, []string{"insert_field", "insert_ts", "logfmt", "script"}, registry.TransformTypes())
	assert.Equal(t,
		[]string{"kafka", "nats", "speed_test", "stdout", "tcp_socket", "udp_socket", "unix_socket"},
		registry.SinkTypes())
}

func TestRegisterAll_Twice(t *testing.T) {
	registry := plugin.NewRegistry()
	require.NoError(t, RegisterAll(registry))
	assert.Error(t, RegisterAll(registry))
}
