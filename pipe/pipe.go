// Package pipe provides the bounded FIFO connecting pipeline stages.
// Records flow forward and acknowledgements flow in reverse over the same
// Pipe; producers block when the forward channel is full, which is how
// back-pressure propagates from a slow sink all the way to the source.
package pipe

import (
	"context"
	"fmt"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
)

// Channel capacity bounds; the global default is DefaultCapacity.
const (
	MinCapacity     = 2
	MaxCapacity     = 1024
	DefaultCapacity = 128
)

// Pipe is a bounded channel pair between two pipeline stages.
type Pipe struct {
	// Records carries payloads downstream. Closed by the producing stage
	// when it finishes.
	Records chan event.Record

	// Acks carries offset tokens upstream. Closed by the consuming stage
	// once every record it received has been acked or dropped.
	Acks chan event.Ack
}

// New creates a pipe with the given capacity on both directions.
func New(capacity int) (*Pipe, error) {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, errors.WrapInvalid(
			fmt.Errorf("channel capacity %d outside range [%d, %d]", capacity, MinCapacity, MaxCapacity),
			"Pipe", "New", "capacity validation")
	}

	return &Pipe{
		Records: make(chan event.Record, capacity),
		Acks:    make(chan event.Ack, capacity),
	}, nil
}

// Send delivers a record downstream, blocking while the channel is full.
// Returns ctx.Err() if the context is cancelled first.
func (p *Pipe) Send(ctx context.Context, rec event.Record) error {
	select {
	case p.Records <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendAck delivers an acknowledgement upstream, blocking while the channel
// is full. Ack channels are sized like record channels, so an ack slot is
// always eventually available while the upstream consumer drains.
func (p *Pipe) SendAck(ctx context.Context, ack event.Ack) error {
	select {
	case p.Acks <- ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
