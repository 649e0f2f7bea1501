// Package kafka provides the kafka sink: produce each record as a JSON
// message to a topic. Produces are synchronous so an acknowledgement only
// travels upstream once the broker confirmed the write; failed produces
// retry with backoff, blocking upstream, until the configured ceiling.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pkg/retry"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this sink
const TypeName = "kafka"

// Sink produces records to a Kafka topic
type Sink struct {
	name       string
	brokers    []string
	topic      string
	maxRetries int // produce retry ceiling; 0 retries forever
	logger     *slog.Logger
	client     *kgo.Client
}

// New creates a kafka sink from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	brokers := args.StringSlice("brokers")
	if len(brokers) == 0 {
		return nil, errors.WrapFatal(
			errors.New("could not find 'brokers' arg for kafka, or it is empty"),
			TypeName, "New", "argument lookup")
	}

	topic, err := args.RequiredString(TypeName, "topic")
	if err != nil {
		return nil, err
	}

	return &Sink{
		name:       name,
		brokers:    brokers,
		topic:      topic,
		maxRetries: args.Int("max_retries", 0),
		logger:     deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open creates the client and verifies broker connectivity
func (s *Sink) Open(ctx context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.DefaultProduceTopic(s.topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return errors.WrapFatal(err, TypeName, "Open", "client construction")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return errors.WrapFatal(err, TypeName, "Open", "broker connectivity check")
	}

	s.client = client
	s.logger.Info("connected", "brokers", s.brokers, "topic", s.topic)
	return nil
}

// Write produces one record synchronously, retrying failed produces with
// backoff so a transient broker outage blocks upstream instead of stopping
// the route. The retry ceiling exhausting is fatal.
func (s *Sink) Write(ctx context.Context, rec event.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		s.logger.Error("dropping unserializable record", "error", err)
		return nil
	}

	cfg := retry.Reconnect()
	cfg.MaxAttempts = s.maxRetries

	err = retry.Do(ctx, cfg, func() error {
		results := s.client.ProduceSync(ctx, &kgo.Record{Value: line})
		if err := results.FirstErr(); err != nil {
			s.logger.Warn("produce failed, retrying", "topic", s.topic, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: producing to %s: %v", errors.ErrMaxRetriesExceeded, s.topic, err),
			TypeName, "Write", "produce")
	}
	return nil
}

// Close flushes outstanding produces and closes the client
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.client.Flush(ctx)
	s.client.Close()
	s.client = nil
	return err
}

// Register registers the kafka sink with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSinkType(TypeName, New)
}
