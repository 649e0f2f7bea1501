package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// harness runs a file input against a pipe and acks everything it receives,
// the way a healthy route would.
type harness struct {
	input  *Input
	pipe   *pipe.Pipe
	cancel context.CancelFunc
	done   chan error
	recs   chan event.Record
}

func startInput(t *testing.T, args plugin.Args) *harness {
	t.Helper()

	src, err := New("test_input", args, plugin.Dependencies{})
	require.NoError(t, err)
	input := src.(*Input)
	for _, tl := range input.tailers {
		tl.pollEvery = 10 * time.Millisecond
	}

	p, err := pipe.New(128)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		input:  input,
		pipe:   p,
		cancel: cancel,
		done:   make(chan error, 1),
		recs:   make(chan event.Record, 1024),
	}

	go func() {
		h.done <- input.Run(ctx, p)
	}()

	// Consume records, ack immediately, close the ack channel when the
	// record stream ends — the route runtime's contract.
	go func() {
		for rec := range p.Records {
			h.recs <- rec
			p.Acks <- rec.Ack()
		}
		close(p.Acks)
		close(h.recs)
	}()

	return h
}

// expectLine waits for the next raw record
func (h *harness) expectLine(t *testing.T) string {
	t.Helper()
	select {
	case rec := <-h.recs:
		return rec.Raw()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a record")
		return ""
	}
}

func (h *harness) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case rec, ok := <-h.recs:
		if ok {
			t.Fatalf("unexpected record: %q", rec.Raw())
		}
	case <-time.After(wait):
	}
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("input did not stop")
	}
}

func appendTo(t *testing.T, path, contents string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(contents)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFileInput_TailExistingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a\nb\nc\n")

	h := startInput(t, plugin.Args{"path": path})
	assert.Equal(t, "a", h.expectLine(t))
	assert.Equal(t, "b", h.expectLine(t))
	assert.Equal(t, "c", h.expectLine(t))
	h.stop(t)
}

func TestFileInput_FileAppearsAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")

	h := startInput(t, plugin.Args{"path": path})
	time.Sleep(50 * time.Millisecond)
	appendTo(t, path, "late\n")

	assert.Equal(t, "late", h.expectLine(t))
	h.stop(t)
}

func TestFileInput_PartialLineHeldUntilTerminated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "hello ")

	h := startInput(t, plugin.Args{"path": path})
	h.expectNothing(t, 100*time.Millisecond)

	appendTo(t, path, "world\n")
	assert.Equal(t, "hello world", h.expectLine(t))
	h.stop(t)
}

func TestFileInput_RestartResumesWithoutDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a\nb\nc\n")
	args := plugin.Args{"path": path}

	h := startInput(t, args)
	assert.Equal(t, "a", h.expectLine(t))
	assert.Equal(t, "b", h.expectLine(t))
	assert.Equal(t, "c", h.expectLine(t))
	h.stop(t)

	appendTo(t, path, "d\ne\n")

	h = startInput(t, args)
	assert.Equal(t, "d", h.expectLine(t))
	assert.Equal(t, "e", h.expectLine(t))
	h.expectNothing(t, 100*time.Millisecond)
	h.stop(t)
}

func TestFileInput_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a\nb\n")

	h := startInput(t, plugin.Args{"path": path})
	assert.Equal(t, "a", h.expectLine(t))
	assert.Equal(t, "b", h.expectLine(t))

	require.NoError(t, os.Rename(path, path+".1"))
	appendTo(t, path, "c\nd\n")

	assert.Equal(t, "c", h.expectLine(t))
	assert.Equal(t, "d", h.expectLine(t))
	h.stop(t)
}

func TestFileInput_RotationBumpsGeneration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a\n")

	h := startInput(t, plugin.Args{"path": path})

	rec := <-h.recs
	assert.Equal(t, uint64(0), rec.Token.(event.FileToken).Generation)

	require.NoError(t, os.Rename(path, path+".1"))
	appendTo(t, path, "b\n")

	rec = <-h.recs
	assert.Equal(t, uint64(1), rec.Token.(event.FileToken).Generation)
	assert.Equal(t, int64(2), rec.Token.(event.FileToken).Offset)
	h.stop(t)
}

func TestFileInput_TruncationSameInode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a long line here\nanother\n")

	h := startInput(t, plugin.Args{"path": path})
	assert.Equal(t, "a long line here", h.expectLine(t))
	assert.Equal(t, "another", h.expectLine(t))

	// Truncate in place: same inode, smaller size
	require.NoError(t, os.Truncate(path, 0))
	appendTo(t, path, "x\n")

	assert.Equal(t, "x", h.expectLine(t))
	h.stop(t)
}

func TestFileInput_JSONMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "{\"msg\":\"ok\"}\nnot json\n{\"msg\":\"second\"}\n")

	h := startInput(t, plugin.Args{"path": path, "parse_json": true})

	rec := <-h.recs
	require.True(t, rec.IsStructured())
	assert.Equal(t, "ok", rec.Fields()["msg"])

	// The malformed line is consumed, not delivered
	rec = <-h.recs
	assert.Equal(t, "second", rec.Fields()["msg"])
	h.stop(t)
}

func TestFileInput_MalformedJSONStillAdvancesCursor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "{\"ok\":1}\nbroken\n")
	args := plugin.Args{"path": path, "parse_json": true}

	h := startInput(t, args)
	rec := <-h.recs
	assert.Equal(t, json.Number("1"), rec.Fields()["ok"])
	h.expectNothing(t, 200*time.Millisecond)
	h.stop(t)

	// On restart nothing replays: the malformed line was consumed too
	h = startInput(t, args)
	h.expectNothing(t, 200*time.Millisecond)
	h.stop(t)
}

func TestFileInput_GlobExpandsOnce(t *testing.T) {
	dir := t.TempDir()
	appendTo(t, filepath.Join(dir, "one.log"), "hello\n")
	appendTo(t, filepath.Join(dir, "two.log"), "world\n")

	h := startInput(t, plugin.Args{"path": filepath.Join(dir, "*.log")})

	lines := map[string]bool{}
	lines[h.expectLine(t)] = true
	lines[h.expectLine(t)] = true
	assert.True(t, lines["hello"])
	assert.True(t, lines["world"])
	h.stop(t)
}

func TestFileInput_StateFileDir(t *testing.T) {
	dir := t.TempDir()
	stateDir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	appendTo(t, path, "a\n")

	h := startInput(t, plugin.Args{"path": path, "state_file_dir": stateDir})
	assert.Equal(t, "a", h.expectLine(t))
	h.stop(t)

	_, err := os.Stat(filepath.Join(stateDir, "in.log.state"))
	assert.NoError(t, err)
}

func TestFileInput_RejectsDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	_, err := New("x", plugin.Args{"path": dir}, plugin.Dependencies{})
	assert.Error(t, err)
}

func TestFileInput_RejectsMissingParent(t *testing.T) {
	_, err := New("x", plugin.Args{"path": "/does/not/exist/in.log"}, plugin.Dependencies{})
	assert.Error(t, err)
}

func TestFileInput_MissingPathArg(t *testing.T) {
	_, err := New("x", plugin.Args{}, plugin.Dependencies{})
	assert.Error(t, err)
}
