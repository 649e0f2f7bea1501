// Package journald provides the journald input: it consumes entries from
// the system journal and checkpoints the journal's opaque cursor strings.
// The journal library owns ordering and continuity, so unlike the file
// input there is no rotation handling.
package journald

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/log-store/log-ship/cursor"
	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this input
const TypeName = "journald"

// waitInterval bounds the blocking wait for new journal entries so the
// loop can observe cancellation
const waitInterval = 100 * time.Millisecond

// Input reads entries from the system journal
type Input struct {
	name        string
	journalType string // all, system, or user
	fromStart   bool
	logger      *slog.Logger
	tracker     *cursor.Tracker
}

// New creates a journald input from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Source, error) {
	journalType := args.String("journal", "all")
	switch journalType {
	case "all", "system", "user":
	default:
		return nil, errors.WrapFatal(
			fmt.Errorf("unknown journal %q, please leave blank or use one of 'system' or 'user'", journalType),
			TypeName, "New", "journal type check")
	}

	fromStart, err := args.BoolStrict(TypeName, "from_beginning", false)
	if err != nil {
		return nil, err
	}

	cursorPath, err := args.RequiredString(TypeName, "cursor_file")
	if err != nil {
		return nil, err
	}

	logger := deps.ComponentLogger(TypeName, name)

	return &Input{
		name:        name,
		journalType: journalType,
		fromStart:   fromStart,
		logger:      logger,
		tracker:     cursor.NewTracker(cursor.NewStore(cursorPath), logger),
	}, nil
}

// Name implements plugin.Source
func (j *Input) Name() string { return j.name }

// Run consumes journal entries until ctx is cancelled, then drains acks and
// flushes the cursor.
func (j *Input) Run(ctx context.Context, out *pipe.Pipe) error {
	journal, err := j.open()
	if err != nil {
		close(out.Records)
		drainAcks(out)
		return err
	}
	defer func() { _ = journal.Close() }()

	ackDone := make(chan struct{})
	go func() {
		defer close(ackDone)
		for ack := range out.Acks {
			if err := j.tracker.Ack(ack); err != nil {
				j.logger.Warn("cursor update failed", "error", err)
			}
		}
	}()

	err = j.readLoop(ctx, journal, out)
	close(out.Records)
	<-ackDone

	if flushErr := j.tracker.Flush(); flushErr != nil {
		j.logger.Warn("cursor flush failed on shutdown", "error", flushErr)
	}

	return err
}

// open creates the journal handle, applies the namespace filter, and seeks
// to the persisted cursor
func (j *Input) open() (*sdjournal.Journal, error) {
	journal, err := sdjournal.NewJournal()
	if err != nil {
		return nil, errors.WrapFatal(err, TypeName, "open", "opening journal")
	}

	// The C API exposes namespace selection through open flags that the
	// binding does not surface; filter on the owning UID instead.
	switch j.journalType {
	case "system":
		if err := journal.AddMatch("_UID=0"); err != nil {
			_ = journal.Close()
			return nil, errors.WrapFatal(err, TypeName, "open", "system journal filter")
		}
	case "user":
		u, err := user.Current()
		if err != nil {
			_ = journal.Close()
			return nil, errors.WrapFatal(err, TypeName, "open", "current user lookup")
		}
		if err := journal.AddMatch("_UID=" + u.Uid); err != nil {
			_ = journal.Close()
			return nil, errors.WrapFatal(err, TypeName, "open", "user journal filter")
		}
	}

	if stored := j.resolveSeek(); stored != "" {
		if err := journal.SeekCursor(string(stored)); err != nil {
			j.logger.Warn("stored cursor rejected by the journal, starting from the beginning", "error", err)
			if err := journal.SeekHead(); err != nil {
				_ = journal.Close()
				return nil, errors.WrapFatal(err, TypeName, "open", "seek to head")
			}
		} else {
			// SeekCursor positions at the acked entry; skip past it
			if _, err := journal.NextSkip(1); err != nil {
				j.logger.Warn("skipping acked entry failed", "error", err)
			}
		}
		return journal, nil
	}

	// No usable cursor: start at the beginning, like the file input with no
	// prior state
	if err := journal.SeekHead(); err != nil {
		_ = journal.Close()
		return nil, errors.WrapFatal(err, TypeName, "open", "seek to head")
	}
	return journal, nil
}

// resolveSeek returns the stored cursor to resume after, or "" to read from
// the head. from_beginning forces the head; a missing or unreadable cursor
// file falls back to it.
func (j *Input) resolveSeek() event.JournalToken {
	if j.fromStart {
		return ""
	}

	tok, err := j.tracker.Store().Load()
	if err != nil {
		j.logger.Warn("cursor file unreadable, starting from the beginning", "error", err)
		return ""
	}
	if jt, ok := tok.(event.JournalToken); ok {
		return jt
	}
	return ""
}

// readLoop emits one structured record per journal entry
func (j *Input) readLoop(ctx context.Context, journal *sdjournal.Journal, out *pipe.Pipe) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := journal.Next()
		if err != nil {
			return errors.WrapTransient(err, TypeName, "readLoop", "advancing journal")
		}
		if n == 0 {
			journal.Wait(waitInterval)
			continue
		}

		entry, err := journal.GetEntry()
		if err != nil {
			j.logger.Warn("dropping unreadable journal entry", "error", err)
			continue
		}

		fields := make(map[string]any, len(entry.Fields))
		for k, v := range entry.Fields {
			fields[k] = v
		}

		seq := j.tracker.Assign()
		rec := event.NewStructured("", seq, event.JournalToken(entry.Cursor), fields)
		if err := out.Send(ctx, rec); err != nil {
			return nil // cancelled while the pipeline was full
		}
	}
}

// drainAcks consumes the ack channel so the route's ack loop never blocks,
// used on the failed-open path.
func drainAcks(out *pipe.Pipe) {
	go func() {
		for range out.Acks {
		}
	}()
}

// Register registers the journald input with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSourceType(TypeName, New)
}
