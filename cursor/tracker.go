package cursor

import (
	"sync"
	"time"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
)

// Flush policy defaults: persist after this many acks or this much time,
// whichever comes first. Shutdown always flushes.
const (
	DefaultFlushEvery    = 64
	DefaultFlushInterval = time.Second
)

// Tracker assigns sequence numbers to emitted records and turns the
// out-of-order stream of acknowledgements back into a contiguous prefix.
// The persisted cursor never moves backwards, and every record is
// acknowledged at most once.
type Tracker struct {
	mu sync.Mutex

	store  *Store
	logger ackLogger

	next     uint64                 // next sequence number to assign
	frontier uint64                 // all seq < frontier are acked
	acked    map[uint64]event.Token // acked but not yet contiguous
	high     event.Token            // token at the prefix boundary
	dirty    bool

	flushEvery    int
	flushInterval time.Duration
	sinceFlush    int
	lastFlush     time.Time
}

// ackLogger is the subset of slog used here, narrowed for tests
type ackLogger interface {
	Warn(msg string, args ...any)
}

// NewTracker creates a tracker persisting through store. A nil store is
// allowed for sources that do not checkpoint; acks are then discarded.
func NewTracker(store *Store, logger ackLogger) *Tracker {
	return &Tracker{
		store:         store,
		logger:        logger,
		next:          1,
		frontier:      1,
		acked:         make(map[uint64]event.Token),
		flushEvery:    DefaultFlushEvery,
		flushInterval: DefaultFlushInterval,
		lastFlush:     time.Now(),
	}
}

// Store returns the tracker's backing store; nil for non-checkpointing
// sources.
func (t *Tracker) Store() *Store {
	return t.store
}

// Assign returns the sequence number for the next emitted record
func (t *Tracker) Assign() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.next
	t.next++
	return seq
}

// Pending returns the number of assigned but not yet contiguously acked
// records.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.next - t.frontier)
}

// Ack records an acknowledgement. When the ack closes a gap the frontier
// advances to the largest contiguous sequence and the cursor may be
// flushed per the N-acks / T-elapsed policy.
func (t *Tracker) Ack(ack event.Ack) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ack.Seq >= t.next {
		t.warn("ack for unassigned sequence", "seq", ack.Seq)
		return nil
	}
	if ack.Seq < t.frontier {
		// Duplicate ack; the prefix already moved past it.
		t.warn("duplicate ack", "seq", ack.Seq)
		return nil
	}
	if _, dup := t.acked[ack.Seq]; dup {
		t.warn("duplicate ack", "seq", ack.Seq)
		return nil
	}

	t.acked[ack.Seq] = ack.Token

	// Advance the frontier across every contiguous ack
	advanced := false
	for {
		tok, ok := t.acked[t.frontier]
		if !ok {
			break
		}
		delete(t.acked, t.frontier)
		t.frontier++
		advanced = true
		if tok != nil {
			t.high = tok
			t.dirty = true
		}
		t.sinceFlush++
	}

	if !advanced {
		return nil
	}

	if t.sinceFlush >= t.flushEvery || time.Since(t.lastFlush) >= t.flushInterval {
		return t.flushLocked()
	}
	return nil
}

// Flush persists the current high-water token if it changed since the last
// write. Called by sources on shutdown.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *Tracker) flushLocked() error {
	t.sinceFlush = 0
	t.lastFlush = time.Now()

	if !t.dirty || t.store == nil || t.high == nil {
		return nil
	}

	if err := t.store.Save(t.high); err != nil {
		return errors.Wrap(err, "Tracker", "Flush", "cursor persist")
	}
	t.dirty = false
	return nil
}

func (t *Tracker) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
