// Package file provides the file input: it tails one or more paths,
// survives truncation, rotation and restart, and persists a cursor that
// only advances over contiguously acknowledged lines.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/log-store/log-ship/cursor"
	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this input
const TypeName = "file"

// defaultPollInterval bounds both discovery of a not-yet-existing file and
// the idle wait at EOF.
const defaultPollInterval = 250 * time.Millisecond

// identity is the stable identity of an open file
type identity struct {
	dev uint64
	ino uint64
}

// Input tails every file matched by the configured glob. Each match is an
// independent tailer with its own cursor; all tailers share the route's
// channel.
type Input struct {
	name    string
	tailers []*tailer
	logger  *slog.Logger

	// identities maps emitted token identities back to the owning tailer
	// so acknowledgements can be demultiplexed
	identities sync.Map // identity -> *tailer
}

// tailer follows a single path through rotations
type tailer struct {
	input      *Input
	path       string
	statePath  string
	parseJSON  bool
	fromStart  bool
	pollEvery  time.Duration
	logger     *slog.Logger
	tracker    *cursor.Tracker

	file       *os.File
	reader     *bufio.Reader
	ident      identity
	restored   identity // identity recorded in the loaded cursor, if any
	pos        int64    // offset of the next unread byte
	generation uint64   // incremented per detected rotation
	partial    []byte   // unterminated trailing data
}

// New creates a file input from its configured arguments. The path arg is
// expanded as a glob exactly once; files appearing later are not picked up.
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Source, error) {
	path, err := args.RequiredString(TypeName, "path")
	if err != nil {
		return nil, err
	}

	parseJSON, err := args.BoolStrict(TypeName, "parse_json", false)
	if err != nil {
		return nil, err
	}
	fromStart, err := args.BoolStrict(TypeName, "from_beginning", false)
	if err != nil {
		return nil, err
	}

	stateDir := args.String("state_file_dir", "")
	if stateDir != "" {
		info, err := os.Stat(stateDir)
		if err != nil || !info.IsDir() {
			return nil, errors.WrapFatal(
				fmt.Errorf("the path specified by 'state_file_dir' is not a directory: %s", stateDir),
				TypeName, "New", "state directory check")
		}
	}

	matches, err := filepath.Glob(path)
	if err != nil {
		return nil, errors.WrapFatal(err, TypeName, "New", "glob expansion")
	}
	if len(matches) == 0 {
		// No matches: treat the arg as a literal path that may appear later
		matches = []string{path}
	}

	logger := deps.ComponentLogger(TypeName, name)
	input := &Input{name: name, logger: logger}

	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.IsDir() {
			return nil, errors.WrapFatal(
				fmt.Errorf("'path' argument resolves to a directory, not a file: %s", match),
				TypeName, "New", "path check")
		}

		dir := filepath.Dir(match)
		if _, err := os.Stat(dir); err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("the directory containing the input file does not exist: %s", dir),
				TypeName, "New", "parent directory check")
		}

		statePath := statePathFor(match, stateDir)
		logger.Info("using state file", "state_file", statePath, "input_file", match)

		t := &tailer{
			input:     input,
			path:      match,
			statePath: statePath,
			parseJSON: parseJSON,
			fromStart: fromStart,
			pollEvery: defaultPollInterval,
			logger:    logger.With("path", match),
			tracker:   cursor.NewTracker(cursor.NewStore(statePath), logger),
		}
		input.tailers = append(input.tailers, t)
	}

	return input, nil
}

// statePathFor places the cursor file alongside the tailed file unless a
// state directory was configured
func statePathFor(path, stateDir string) string {
	name := filepath.Base(path) + ".state"
	if stateDir != "" {
		return filepath.Join(stateDir, name)
	}
	return filepath.Join(filepath.Dir(path), name)
}

// Name implements plugin.Source
func (f *Input) Name() string { return f.name }

// Run tails every matched file until ctx is cancelled, then drains the ack
// channel and flushes cursors.
func (f *Input) Run(ctx context.Context, out *pipe.Pipe) error {
	// A fatal error in one tailer stops the whole input, and with it the route
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(f.tailers))

	for _, t := range f.tailers {
		wg.Add(1)
		go func(t *tailer) {
			defer wg.Done()
			if err := t.run(ctx, out); err != nil {
				errCh <- err
				cancel()
			}
		}(t)
	}

	// Demultiplex acknowledgements to the owning tailer. Runs until the
	// route closes out.Acks after the pipeline drains.
	ackDone := make(chan struct{})
	go func() {
		defer close(ackDone)
		for ack := range out.Acks {
			f.dispatchAck(ack)
		}
	}()

	wg.Wait()
	close(out.Records)
	<-ackDone

	for _, t := range f.tailers {
		if err := t.tracker.Flush(); err != nil {
			f.logger.Warn("cursor flush failed on shutdown", "path", t.path, "error", err)
		}
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// dispatchAck routes an acknowledgement to the tailer that emitted it
func (f *Input) dispatchAck(ack event.Ack) {
	tok, ok := ack.Token.(event.FileToken)
	if !ok {
		f.logger.Warn("ack with unexpected token kind", "seq", ack.Seq)
		return
	}

	v, ok := f.identities.Load(identity{dev: tok.Device, ino: tok.Inode})
	if !ok {
		f.logger.Warn("ack for unknown file identity", "inode", tok.Inode)
		return
	}

	t := v.(*tailer)
	if err := t.tracker.Ack(ack); err != nil {
		t.logger.Warn("cursor update failed", "error", err)
	}
}

// run is one tailer's main loop
func (t *tailer) run(ctx context.Context, out *pipe.Pipe) error {
	if err := t.restore(); err != nil {
		return err
	}

	readDelay := time.Duration(0) // backoff for transient read errors

	for {
		select {
		case <-ctx.Done():
			t.closeFile()
			return nil
		default:
		}

		if t.file == nil {
			if err := t.open(ctx); err != nil {
				return err
			}
			if t.file == nil {
				return nil // cancelled while waiting for the file
			}
		}

		progressed, err := t.readLines(ctx, out)
		if err != nil {
			if ctx.Err() != nil {
				t.closeFile()
				return nil
			}
			if errors.IsFatal(err) {
				t.closeFile()
				return err
			}
			// Transient read error: back off, capped at 30s
			t.logger.Warn("read error, backing off", "error", err, "delay", readDelay)
			readDelay = nextDelay(readDelay)
			if !sleep(ctx, readDelay) {
				t.closeFile()
				return nil
			}
			continue
		}
		readDelay = 0

		if progressed {
			continue
		}

		// At EOF: look for rotation or truncation before waiting
		rotated, err := t.checkRotation(ctx, out)
		if err != nil {
			t.closeFile()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if rotated {
			continue
		}

		if !sleep(ctx, t.pollEvery) {
			t.closeFile()
			return nil
		}
	}
}

// restore loads the persisted cursor and computes the starting position
func (t *tailer) restore() error {
	if t.fromStart {
		t.pos = 0
		return nil
	}

	tok, err := t.tracker.Store().Load()
	if err != nil {
		if errors.Is(err, errors.ErrCursorCorrupt) {
			t.logger.Warn("cursor file corrupt, starting from the beginning", "state_file", t.statePath)
			t.pos = 0
			return nil
		}
		return err
	}
	if tok == nil {
		t.pos = 0
		return nil
	}

	ft, ok := tok.(event.FileToken)
	if !ok {
		t.logger.Warn("cursor file holds a foreign token, starting from the beginning")
		t.pos = 0
		return nil
	}

	t.pos = ft.Offset
	t.generation = ft.Generation
	t.restored = identity{dev: ft.Device, ino: ft.Inode}
	return nil
}

// open waits for the path to exist, then opens it and seeks to the restored
// position. Returns with t.file == nil when cancelled.
func (t *tailer) open(ctx context.Context) error {
	for {
		file, err := os.Open(t.path)
		if err != nil {
			if os.IsPermission(err) {
				return errors.WrapFatal(err, TypeName, "open", "opening input file")
			}
			if !os.IsNotExist(err) {
				return errors.WrapTransient(err, TypeName, "open", "opening input file")
			}
			// Absent: poll the parent for creation
			if !sleep(ctx, t.pollEvery) {
				return nil
			}
			continue
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return errors.WrapTransient(err, TypeName, "open", "stat input file")
		}

		ident := fileIdentity(info)
		if t.restored != (identity{}) && ident != t.restored {
			// The file was replaced while the daemon was down; the stored
			// offset belongs to the old identity
			t.logger.Info("file identity changed since last run, starting from the beginning")
			t.pos = 0
		}
		t.restored = identity{}
		if t.pos > info.Size() {
			t.logger.Warn("file is smaller than the stored position, restarting from the beginning",
				"stored", t.pos, "size", info.Size())
			t.pos = 0
		}
		if t.pos > 0 {
			if _, err := file.Seek(t.pos, io.SeekStart); err != nil {
				_ = file.Close()
				return errors.WrapTransient(err, TypeName, "open", "seek to stored position")
			}
		}

		t.file = file
		t.reader = bufio.NewReader(file)
		t.ident = ident
		t.partial = nil
		t.input.identities.Store(ident, t)
		t.logger.Debug("opened input file", "position", t.pos, "generation", t.generation)
		return nil
	}
}

func (t *tailer) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
		t.reader = nil
	}
}

// readLines consumes terminated lines until EOF, emitting one record per
// line. Partial trailing data is buffered, not emitted. Returns whether any
// bytes were consumed.
func (t *tailer) readLines(ctx context.Context, out *pipe.Pipe) (bool, error) {
	progressed := false

	for {
		chunk, err := t.reader.ReadBytes('\n')
		if len(chunk) > 0 {
			progressed = true
			t.pos += int64(len(chunk))

			if chunk[len(chunk)-1] != '\n' {
				// Unterminated: hold until the line completes
				t.partial = append(t.partial, chunk...)
			} else {
				line := string(t.partial) + string(chunk[:len(chunk)-1])
				t.partial = nil
				if err := t.emit(ctx, out, line); err != nil {
					return progressed, err
				}
			}
		}

		if err != nil {
			if err == io.EOF {
				return progressed, nil
			}
			return progressed, errors.WrapTransient(err, TypeName, "readLines", "reading input file")
		}
	}
}

// emit sends one terminated line as a record. Empty lines and lines that
// fail JSON parsing advance the cursor without entering the pipeline.
func (t *tailer) emit(ctx context.Context, out *pipe.Pipe, line string) error {
	seq := t.tracker.Assign()
	tok := event.FileToken{
		Device:     t.ident.dev,
		Inode:      t.ident.ino,
		Offset:     t.pos - int64(len(t.partial)),
		Generation: t.generation,
	}

	if line == "" {
		return t.tracker.Ack(event.Ack{Seq: seq, Token: tok})
	}

	var rec event.Record
	if t.parseJSON {
		fields, err := event.ParseJSON(line)
		if err != nil {
			t.logger.Warn("dropping line that failed JSON parsing", "error", err)
			// Consumed: count it as handled so the cursor can move past it
			return t.tracker.Ack(event.Ack{Seq: seq, Token: tok})
		}
		rec = event.NewStructured("", seq, tok, fields)
	} else {
		rec = event.NewRaw("", seq, tok, line)
	}

	return out.Send(ctx, rec)
}

// checkRotation stats the path at EOF. A different identity, or a shrunken
// file under the same identity, means the file was rotated or truncated.
func (t *tailer) checkRotation(ctx context.Context, out *pipe.Pipe) (bool, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Renamed away with no replacement yet: hold the old handle and
			// wait for the new file
			return false, nil
		}
		return false, errors.WrapTransient(err, TypeName, "checkRotation", "stat input file")
	}

	ident := fileIdentity(info)

	if ident == t.ident {
		if info.Size() < t.pos {
			// Truncation without rotation: rewind and continue
			t.logger.Info("file truncated, seeking to the beginning", "size", info.Size(), "position", t.pos)
			if _, err := t.file.Seek(0, io.SeekStart); err != nil {
				return false, errors.WrapTransient(err, TypeName, "checkRotation", "seek after truncation")
			}
			t.reader.Reset(t.file)
			t.pos = 0
			t.partial = nil
			return true, nil
		}
		return false, nil
	}

	// Rotation: drain terminated lines still in the old handle, then reopen
	t.logger.Info("rotation detected", "generation", t.generation+1)
	if _, err := t.readLines(ctx, out); err != nil {
		return false, err
	}

	t.closeFile()
	t.partial = nil
	t.pos = 0
	t.generation++
	return true, t.open(ctx)
}

// fileIdentity extracts the stable identity from stat results
func fileIdentity(info os.FileInfo) identity {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return identity{}
	}
	return identity{dev: uint64(st.Dev), ino: st.Ino}
}

// nextDelay doubles a read-retry delay up to the 30s cap
func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 250 * time.Millisecond
	}
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// sleep waits for d, returning false when ctx is cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Register registers the file input with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSourceType(TypeName, New)
}
