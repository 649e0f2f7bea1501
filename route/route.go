// Package route provides the per-route pipeline runtime: one source, an
// ordered transform chain, and one or more sinks, wired together with
// bounded channels. Three worker roles run per route — the source reader,
// the transform chain, and one writer per sink — plus an ack aggregator
// that turns N sink acknowledgements into one upstream acknowledgement.
//
// Ordering: records flow through the transform chain in source order, and
// every sink observes that same order. Acks flow strictly opposite to
// records; the source's tracker reassembles them into a contiguous prefix
// before the cursor moves.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/metric"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// Route is an immutable pipeline wiring, built once at startup
type Route struct {
	id         string
	source     plugin.Source
	transforms []plugin.Transform
	sinks      []plugin.Sink

	channelSize int
	logger      *slog.Logger
	metrics     *metric.RouteMetrics
}

// New creates a route. The id is the configured route name; the drivers
// are already claimed from the registry.
func New(
	id string,
	source plugin.Source,
	transforms []plugin.Transform,
	sinks []plugin.Sink,
	channelSize int,
	logger *slog.Logger,
	metrics *metric.RouteMetrics,
) (*Route, error) {
	if source == nil {
		return nil, errors.WrapFatal(errors.New("route has no source"), "Route", "New", "wiring check")
	}
	if len(sinks) == 0 {
		return nil, errors.WrapFatal(errors.New("route has no sinks"), "Route", "New", "wiring check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Route{
		id:          id,
		source:      source,
		transforms:  transforms,
		sinks:       sinks,
		channelSize: channelSize,
		logger:      logger.With("route", id),
		metrics:     metrics,
	}, nil
}

// ID returns the route's configured name
func (r *Route) ID() string { return r.id }

// Run opens the sinks, starts the workers, and blocks until the pipeline
// drains after cancellation or source exhaustion. Unacked records are left
// for replay on the next start.
func (r *Route) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Open sinks before any record moves
	var opened []plugin.Sink
	for _, sink := range r.sinks {
		if err := sink.Open(ctx); err != nil {
			for _, s := range opened {
				_ = s.Close()
			}
			return errors.Wrap(err, "Route", "Run", fmt.Sprintf("opening sink %q", sink.Name()))
		}
		opened = append(opened, sink)
	}
	defer func() {
		for _, s := range opened {
			if err := s.Close(); err != nil {
				r.logger.Warn("sink close failed", "sink", s.Name(), "error", err)
			}
		}
	}()

	srcPipe, err := pipe.New(r.channelSize)
	if err != nil {
		return err
	}
	sinkPipes := make([]*pipe.Pipe, len(r.sinks))
	for i := range r.sinks {
		if sinkPipes[i], err = pipe.New(r.channelSize); err != nil {
			return err
		}
	}

	errCh := make(chan error, len(r.sinks)+1)

	// Both the transform chain (drop acks) and the aggregator (delivery
	// acks) produce on srcPipe.Acks; close it when both finish.
	var ackProducers sync.WaitGroup
	ackProducers.Add(2)
	go func() {
		ackProducers.Wait()
		close(srcPipe.Acks)
	}()

	var workers sync.WaitGroup

	// Source reader
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := r.source.Run(ctx, srcPipe); err != nil {
			r.logger.Error("source failed", "source", r.source.Name(), "error", err)
			errCh <- err
			cancel()
		}
	}()

	// Transform chain
	workers.Add(1)
	go func() {
		defer workers.Done()
		defer ackProducers.Done()
		r.runTransforms(srcPipe, sinkPipes)
	}()

	// Sink writers
	for i, sink := range r.sinks {
		workers.Add(1)
		go func(sink plugin.Sink, p *pipe.Pipe) {
			defer workers.Done()
			r.runSink(ctx, sink, p, func(err error) {
				r.logger.Error("sink failed, stopping route", "sink", sink.Name(), "error", err)
				errCh <- err
				cancel()
			})
		}(sink, sinkPipes[i])
	}

	// Ack aggregator
	workers.Add(1)
	go func() {
		defer workers.Done()
		defer ackProducers.Done()
		r.aggregateAcks(srcPipe, sinkPipes)
	}()

	workers.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// runTransforms applies the ordered transform chain to every record and
// fans surviving records out to all sink pipes. Dropped records are acked
// immediately: a dropped record still counts as handled.
func (r *Route) runTransforms(srcPipe *pipe.Pipe, sinkPipes []*pipe.Pipe) {
	defer func() {
		for _, sp := range sinkPipes {
			close(sp.Records)
		}
	}()

	for rec := range srcPipe.Records {
		rec.Route = r.id
		if r.metrics != nil {
			r.metrics.RecordsRead.Inc()
		}

		keep := true
		var err error
		for _, t := range r.transforms {
			rec, keep, err = t.Apply(rec)
			if err != nil {
				r.logger.Error("transform dropped record", "transform", t.Name(), "error", err)
			}
			if !keep {
				break
			}
		}

		if !keep {
			if r.metrics != nil {
				r.metrics.RecordsDropped.Inc()
			}
			srcPipe.Acks <- rec.Ack()
			continue
		}

		// Fan-out preserves order: every sink sees the transform chain's
		// emission order
		for _, sp := range sinkPipes {
			sp.Records <- rec
		}
	}
}

// runSink writes records until its pipe closes. On a fatal write error the
// route is stopped right away and the ack channel closes — releasing the
// aggregator — while the remaining in-flight records are discarded
// unacked, to be replayed on restart.
func (r *Route) runSink(ctx context.Context, sink plugin.Sink, p *pipe.Pipe, onFailure func(error)) {
	failed := false

	for rec := range p.Records {
		if failed {
			continue // draining; leave records unacked
		}

		if err := sink.Write(ctx, rec); err != nil {
			failed = true
			close(p.Acks)
			onFailure(err)
			continue
		}

		p.Acks <- rec.Ack()
	}

	if !failed {
		close(p.Acks)
	}
}

// aggregateAcks waits for every sink's acknowledgement of a record before
// producing the single upstream ack. Sinks ack in delivery order, so one
// round reads exactly one ack per sink.
func (r *Route) aggregateAcks(srcPipe *pipe.Pipe, sinkPipes []*pipe.Pipe) {
	defer func() {
		// A sink died mid-round: its channel closed early. Drain the
		// survivors so no writer stays blocked on a full ack channel.
		for _, sp := range sinkPipes {
			go func(acks chan event.Ack) {
				for range acks {
				}
			}(sp.Acks)
		}
	}()

	for {
		var ack event.Ack
		for i, sp := range sinkPipes {
			a, open := <-sp.Acks
			if !open {
				return
			}
			if i == 0 {
				ack = a
			} else if a.Seq != ack.Seq {
				r.logger.Warn("sink acknowledgement order diverged", "seq", a.Seq, "expected", ack.Seq)
			}
		}

		if r.metrics != nil {
			r.metrics.RecordsShipped.Inc()
			r.metrics.AcksAggregated.Inc()
		}
		srcPipe.Acks <- ack
	}
}
