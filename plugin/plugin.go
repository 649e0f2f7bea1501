package plugin

import (
	"context"
	"log/slog"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/metric"
	"github.com/log-store/log-ship/pipe"
)

// Kind is the plugin category a driver belongs to
type Kind string

// Plugin kinds, matching the configuration section names
const (
	KindInput     Kind = "input"
	KindTransform Kind = "transform"
	KindOutput    Kind = "output"
)

// Source produces records. Run sends records into out.Records, consumes
// out.Acks until the route closes it, and returns once both directions are
// finished. Sources that checkpoint flush their cursor before returning.
// Run must close out.Records on return.
type Source interface {
	// Name returns the configured instance name
	Name() string

	// Run drives the source until ctx is cancelled or the source is
	// exhausted (stdin at EOF). A non-nil error stops the route.
	Run(ctx context.Context, out *pipe.Pipe) error
}

// Transform rewrites or drops a record. Apply returns the transformed
// record and keep=true, or keep=false to drop it. A returned error also
// drops the record; the route logs it and continues — a bad record never
// stops a route.
type Transform interface {
	Name() string
	Apply(rec event.Record) (out event.Record, keep bool, err error)
}

// Sink delivers records. Write blocks during reconnection so back-pressure
// propagates upstream; it returns an error when the record cannot be
// delivered (the sink's retry ceiling is exhausted, a write fails
// unrecoverably, or the context is cancelled), which stops the route.
type Sink interface {
	Name() string

	// Open establishes the sink's connection before the route starts
	Open(ctx context.Context) error

	// Write delivers one record; returning nil acknowledges it
	Write(ctx context.Context, rec event.Record) error

	// Close releases the sink's connection during shutdown
	Close() error
}

// Dependencies holds the runtime collaborators handed to every factory
type Dependencies struct {
	// Logger is the process log; factories derive child loggers with
	// component attributes
	Logger *slog.Logger

	// Metrics is the internal metrics registry; nil disables metrics
	Metrics *metric.Registry
}

// ComponentLogger returns a child logger tagged with the component and
// instance names, or a discard-free default when no logger was provided.
func (d Dependencies) ComponentLogger(component, instance string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component, "plugin", instance)
}

// SourceFactory constructs a source from its configured arguments
type SourceFactory func(name string, args Args, deps Dependencies) (Source, error)

// TransformFactory constructs a transform from its configured arguments
type TransformFactory func(name string, args Args, deps Dependencies) (Transform, error)

// SinkFactory constructs a sink from its configured arguments
type SinkFactory func(name string, args Args, deps Dependencies) (Sink, error)
