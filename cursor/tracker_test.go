package cursor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/log-store/log-ship/event"
)

func fileTok(off int64) event.FileToken {
	return event.FileToken{Inode: 1, Offset: off}
}

func newTestTracker(t *testing.T) (*Tracker, *Store) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.state"))
	return NewTracker(store, nil), store
}

func TestTracker_AssignMonotonic(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.Equal(t, uint64(1), tr.Assign())
	assert.Equal(t, uint64(2), tr.Assign())
	assert.Equal(t, uint64(3), tr.Assign())
}

func TestTracker_InOrderAcksAdvance(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.flushEvery = 1 // flush on every advance

	for i := 1; i <= 3; i++ {
		seq := tr.Assign()
		require.NoError(t, tr.Ack(event.Ack{Seq: seq, Token: fileTok(int64(i * 10))}))
	}

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.(event.FileToken).Offset)
	assert.Zero(t, tr.Pending())
}

func TestTracker_OutOfOrderAckHeldUntilPredecessor(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.flushEvery = 1

	s1 := tr.Assign()
	s2 := tr.Assign()
	s3 := tr.Assign()

	// Ack 2 and 3 first: nothing may persist, 1 is still pending.
	require.NoError(t, tr.Ack(event.Ack{Seq: s2, Token: fileTok(20)}))
	require.NoError(t, tr.Ack(event.Ack{Seq: s3, Token: fileTok(30)}))

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Equal(t, 3, tr.Pending())

	// Acking the prefix releases the whole run.
	require.NoError(t, tr.Ack(event.Ack{Seq: s1, Token: fileTok(10)}))

	tok, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(30), tok.(event.FileToken).Offset)
	assert.Zero(t, tr.Pending())
}

func TestTracker_CursorNeverMovesBackwards(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.flushEvery = 1

	s1 := tr.Assign()
	require.NoError(t, tr.Ack(event.Ack{Seq: s1, Token: fileTok(100)}))

	// A duplicate ack with an older token must not rewind the cursor.
	require.NoError(t, tr.Ack(event.Ack{Seq: s1, Token: fileTok(5)}))

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(100), tok.(event.FileToken).Offset)
}

func TestTracker_DuplicateAckIgnored(t *testing.T) {
	tr, _ := newTestTracker(t)

	s1 := tr.Assign()
	s2 := tr.Assign()
	require.NoError(t, tr.Ack(event.Ack{Seq: s2, Token: fileTok(20)}))
	require.NoError(t, tr.Ack(event.Ack{Seq: s2, Token: fileTok(20)}))

	assert.Equal(t, 2, tr.Pending())

	require.NoError(t, tr.Ack(event.Ack{Seq: s1, Token: fileTok(10)}))
	assert.Zero(t, tr.Pending())
}

func TestTracker_NilTokenAcksAdvanceWithoutPersisting(t *testing.T) {
	// Transform drops ack with whatever token the record carried; sources
	// without checkpointing carry nil.
	tr, store := newTestTracker(t)
	tr.flushEvery = 1

	s1 := tr.Assign()
	require.NoError(t, tr.Ack(event.Ack{Seq: s1, Token: nil}))

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Zero(t, tr.Pending())
}

func TestTracker_FlushPolicyByCount(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.flushEvery = 4
	tr.flushInterval = time.Hour // disable the time trigger

	for i := 1; i <= 3; i++ {
		require.NoError(t, tr.Ack(event.Ack{Seq: tr.Assign(), Token: fileTok(int64(i))}))
	}

	// Below the count threshold: nothing written yet.
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, tr.Ack(event.Ack{Seq: tr.Assign(), Token: fileTok(4)}))

	tok, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(4), tok.(event.FileToken).Offset)
}

func TestTracker_ShutdownFlush(t *testing.T) {
	tr, store := newTestTracker(t)
	tr.flushEvery = 1000
	tr.flushInterval = time.Hour

	require.NoError(t, tr.Ack(event.Ack{Seq: tr.Assign(), Token: fileTok(42)}))
	require.NoError(t, tr.Flush())

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(42), tok.(event.FileToken).Offset)
}

func TestTracker_NilStore(t *testing.T) {
	tr := NewTracker(nil, nil)
	require.NoError(t, tr.Ack(event.Ack{Seq: tr.Assign(), Token: nil}))
	require.NoError(t, tr.Flush())
}
