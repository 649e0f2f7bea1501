// Package stdout provides the stdout sink: one JSON line per record to the
// process's standard output, acknowledged immediately after the write.
package stdout

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this sink
const TypeName = "stdout"

// Sink writes records to standard output
type Sink struct {
	name   string
	writer io.Writer
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a stdout sink; it takes no arguments
func New(name string, _ plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	return &Sink{
		name:   name,
		writer: os.Stdout,
		logger: deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open implements plugin.Sink; standard output needs no setup
func (s *Sink) Open(context.Context) error { return nil }

// Write emits one JSON line. A failed write to stdout is unrecoverable for
// this sink, so it stops the route.
func (s *Sink) Write(_ context.Context, rec event.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		s.logger.Error("dropping unserializable record", "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return errors.WrapFatal(err, TypeName, "Write", "writing to standard output")
	}
	return nil
}

// Close implements plugin.Sink; standard output is not ours to close
func (s *Sink) Close() error { return nil }

// Register registers the stdout sink with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSinkType(TypeName, New)
}
