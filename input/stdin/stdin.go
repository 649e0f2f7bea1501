// Package stdin provides the stdin input: line-delimited records from the
// process's standard input until EOF, at which point the route completes.
// Nothing is checkpointed; a re-run re-reads whatever is piped in.
package stdin

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this input
const TypeName = "stdin"

// Input reads lines from standard input
type Input struct {
	name      string
	parseJSON bool
	reader    io.Reader
	logger    *slog.Logger
	seq       atomic.Uint64
}

// New creates a stdin input from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Source, error) {
	parseJSON, err := args.BoolStrict(TypeName, "parse_json", false)
	if err != nil {
		return nil, err
	}

	return &Input{
		name:      name,
		parseJSON: parseJSON,
		reader:    os.Stdin,
		logger:    deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Source
func (s *Input) Name() string { return s.name }

// Run reads lines until EOF or cancellation
func (s *Input) Run(ctx context.Context, out *pipe.Pipe) error {
	ackDone := make(chan struct{})
	go func() {
		defer close(ackDone)
		for range out.Acks {
		}
	}()

	readErr := s.scan(ctx, out)

	close(out.Records)
	<-ackDone
	s.logger.Debug("stdin input closing")
	return readErr
}

// scan reads and emits lines until EOF or cancellation
func (s *Input) scan(ctx context.Context, out *pipe.Pipe) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Text()

		var rec event.Record
		if s.parseJSON {
			fields, err := event.ParseJSON(line)
			if err != nil {
				s.logger.Warn("could not parse line as JSON", "line", line)
				continue
			}
			rec = event.NewStructured("", s.seq.Add(1), nil, fields)
		} else {
			rec = event.NewRaw("", s.seq.Add(1), nil, line)
		}

		if err := out.Send(ctx, rec); err != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WrapTransient(err, TypeName, "scan", "reading standard input")
	}
	return nil
}

// Register registers the stdin input with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSourceType(TypeName, New)
}
