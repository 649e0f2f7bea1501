package insertfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

func newTransform(t *testing.T, args plugin.Args) plugin.Transform {
	t.Helper()
	tr, err := New("tag", args, plugin.Dependencies{})
	require.NoError(t, err)
	return tr
}

func TestInsertField_SetsMissingKey(t *testing.T) {
	tr := newTransform(t, plugin.Args{"field": "source", "value": "y"})

	out, keep, err := tr.Apply(event.NewStructured("r", 1, nil, map[string]any{"msg": "hi"}))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "y", out.Fields()["source"])
}

func TestInsertField_OverwriteFalsePreservesExisting(t *testing.T) {
	tr := newTransform(t, plugin.Args{"field": "source", "value": "y", "overwrite": false})

	out, keep, err := tr.Apply(event.NewStructured("r", 1, nil, map[string]any{"source": "x"}))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "x", out.Fields()["source"])
}

func TestInsertField_OverwriteTrueReplaces(t *testing.T) {
	tr := newTransform(t, plugin.Args{"field": "source", "value": "y", "overwrite": true})

	out, keep, err := tr.Apply(event.NewStructured("r", 1, nil, map[string]any{"source": "x"}))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "y", out.Fields()["source"])
}

func TestInsertField_RawPayloadDropsWithError(t *testing.T) {
	tr := newTransform(t, plugin.Args{"field": "source", "value": "y"})

	_, keep, err := tr.Apply(event.NewRaw("r", 1, nil, "raw line"))
	assert.Error(t, err)
	assert.False(t, keep)
}

func TestInsertField_ScalarValues(t *testing.T) {
	for _, value := range []any{"s", true, int64(7), 1.5} {
		tr := newTransform(t, plugin.Args{"field": "v", "value": value})
		out, keep, err := tr.Apply(event.NewStructured("r", 1, nil, map[string]any{}))
		require.NoError(t, err)
		require.True(t, keep)
		assert.Equal(t, value, out.Fields()["v"])
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x", plugin.Args{"value": "y"}, plugin.Dependencies{})
	assert.Error(t, err, "field is required")

	_, err = New("x", plugin.Args{"field": "f"}, plugin.Dependencies{})
	assert.Error(t, err, "value is required")

	_, err = New("x", plugin.Args{"field": "f", "value": []any{"no"}}, plugin.Dependencies{})
	assert.Error(t, err, "value must be scalar")

	_, err = New("x", plugin.Args{"field": "f", "value": "v", "overwrite": "yes"}, plugin.Dependencies{})
	assert.Error(t, err, "overwrite must be a boolean")
}
