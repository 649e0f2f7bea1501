package stdin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

func runInput(t *testing.T, in *Input) []event.Record {
	t.Helper()
	p, err := pipe.New(16)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background(), p) }()

	var recs []event.Record
	for rec := range p.Records {
		recs = append(recs, rec)
		p.Acks <- rec.Ack()
	}
	close(p.Acks)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("input did not complete at EOF")
	}
	return recs
}

func newInput(t *testing.T, args plugin.Args, body string) *Input {
	t.Helper()
	src, err := New("console", args, plugin.Dependencies{})
	require.NoError(t, err)
	in := src.(*Input)
	in.reader = strings.NewReader(body)
	return in
}

func TestStdin_RawLines(t *testing.T) {
	recs := runInput(t, newInput(t, plugin.Args{}, "one\ntwo\nthree\n"))

	require.Len(t, recs, 3)
	assert.Equal(t, "one", recs[0].Raw())
	assert.Equal(t, "three", recs[2].Raw())
	assert.Nil(t, recs[0].Token)
}

func TestStdin_CompletesAtEOF(t *testing.T) {
	recs := runInput(t, newInput(t, plugin.Args{}, ""))
	assert.Empty(t, recs)
}

func TestStdin_ParseJSON(t *testing.T) {
	body := "{\"a\":1}\nnot json\n{\"b\":2}\n"
	recs := runInput(t, newInput(t, plugin.Args{"parse_json": true}, body))

	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsStructured())
	assert.Contains(t, recs[0].Fields(), "a")
	assert.Contains(t, recs[1].Fields(), "b")
}

func TestStdin_SequenceMonotonic(t *testing.T) {
	recs := runInput(t, newInput(t, plugin.Args{}, "a\nb\n"))
	require.Len(t, recs, 2)
	assert.Less(t, recs[0].Seq, recs[1].Seq)
}

func TestNew_ParseJSONTypeChecked(t *testing.T) {
	_, err := New("x", plugin.Args{"parse_json": "yes"}, plugin.Dependencies{})
	assert.Error(t, err)
}
