package script

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parse.star")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTransform(t *testing.T, args plugin.Args) plugin.Transform {
	t.Helper()
	tr, err := New("user_script", args, plugin.Dependencies{})
	require.NoError(t, err)
	return tr
}

const filterScript = `
def process(s):
    if s.startswith("#"):
        return None
    return {"line": s}
`

func TestScript_DropAndTransform(t *testing.T) {
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, filterScript),
		"arg_type": "str",
	})

	// "#skip" drops silently
	_, keep, err := tr.Apply(event.NewRaw("r", 1, nil, "#skip"))
	require.NoError(t, err)
	assert.False(t, keep)

	// "keep" is wrapped
	out, keep, err := tr.Apply(event.NewRaw("r", 2, nil, "keep"))
	require.NoError(t, err)
	require.True(t, keep)
	require.True(t, out.IsStructured())
	assert.Equal(t, "keep", out.Fields()["line"])
}

func TestScript_DictMode(t *testing.T) {
	body := `
def process(d):
    d["seen"] = True
    return d
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "dict",
	})

	in := event.NewStructured("r", 1, nil, map[string]any{"msg": "hi", "n": json.Number("42")})
	out, keep, err := tr.Apply(in)
	require.NoError(t, err)
	require.True(t, keep)

	assert.Equal(t, "hi", out.Fields()["msg"])
	assert.Equal(t, true, out.Fields()["seen"])
	assert.Equal(t, json.Number("42"), out.Fields()["n"])
}

func TestScript_DictModeParsesRawJSON(t *testing.T) {
	body := `
def process(d):
    return {"level": d["level"]}
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "dict",
	})

	out, keep, err := tr.Apply(event.NewRaw("r", 1, nil, `{"level":"warn"}`))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "warn", out.Fields()["level"])

	// Raw non-JSON in dict mode drops with an error, not a crash
	_, keep, err = tr.Apply(event.NewRaw("r", 2, nil, "plain text"))
	assert.Error(t, err)
	assert.False(t, keep)
}

func TestScript_RaisedErrorDropsRecord(t *testing.T) {
	body := `
def process(s):
    fail("boom")
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "str",
	})

	_, keep, err := tr.Apply(event.NewRaw("r", 1, nil, "x"))
	assert.Error(t, err)
	assert.False(t, keep)
}

func TestScript_WrongReturnTypeDropsRecord(t *testing.T) {
	body := `
def process(s):
    return 42
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "str",
	})

	_, keep, err := tr.Apply(event.NewRaw("r", 1, nil, "x"))
	assert.Error(t, err)
	assert.False(t, keep)
}

func TestScript_CustomFunctionName(t *testing.T) {
	body := `
def handle(s):
    return {"wrapped": s}
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "str",
		"function": "handle",
	})

	out, keep, err := tr.Apply(event.NewRaw("r", 1, nil, "x"))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "x", out.Fields()["wrapped"])
}

func TestScript_StrModeSerializesStructured(t *testing.T) {
	body := `
def process(s):
    return {"length": len(s)}
`
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, body),
		"arg_type": "str",
	})

	in := event.NewStructured("r", 1, nil, map[string]any{"a": "b"})
	out, keep, err := tr.Apply(in)
	require.NoError(t, err)
	require.True(t, keep)
	// `{"a":"b"}` is nine characters
	assert.Equal(t, json.Number("9"), out.Fields()["length"])
}

func TestNew_Validation(t *testing.T) {
	path := writeScript(t, filterScript)

	_, err := New("s", plugin.Args{"arg_type": "str"}, plugin.Dependencies{})
	assert.Error(t, err, "path is required")

	_, err = New("s", plugin.Args{"path": path}, plugin.Dependencies{})
	assert.Error(t, err, "arg_type is required")

	_, err = New("s", plugin.Args{"path": path, "arg_type": "bytes"}, plugin.Dependencies{})
	assert.Error(t, err, "arg_type must be str or dict")

	_, err = New("s", plugin.Args{"path": path, "arg_type": "str", "function": "missing"}, plugin.Dependencies{})
	assert.Error(t, err, "function must exist")

	_, err = New("s", plugin.Args{"path": filepath.Join(t.TempDir(), "nope.star"), "arg_type": "str"}, plugin.Dependencies{})
	assert.Error(t, err, "script file must exist")
}

func TestNew_SyntaxErrorIsFatal(t *testing.T) {
	path := writeScript(t, "def process(s:\n")
	_, err := New("s", plugin.Args{"path": path, "arg_type": "str"}, plugin.Dependencies{})
	assert.Error(t, err)
}

func TestScript_TokenPreservedThroughTransform(t *testing.T) {
	tr := newTransform(t, plugin.Args{
		"path":     writeScript(t, filterScript),
		"arg_type": "str",
	})

	tok := event.FileToken{Inode: 5, Offset: 77}
	out, keep, err := tr.Apply(event.NewRaw("r", 3, tok, "keep"))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, tok, out.Token)
	assert.Equal(t, uint64(3), out.Seq)
}
