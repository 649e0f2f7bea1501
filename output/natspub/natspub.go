// Package natspub provides the nats sink: publish each record as a JSON
// payload to a NATS subject. The client library owns reconnection; while
// it is disconnected Publish fails and Write blocks retrying, so
// back-pressure propagates like the stream-socket sinks.
package natspub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pkg/retry"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this sink
const TypeName = "nats"

// Sink publishes records to a NATS subject
type Sink struct {
	name       string
	url        string
	subject    string
	maxRetries int
	logger     *slog.Logger
	conn       *nats.Conn
}

// New creates a nats sink from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	subject, err := args.RequiredString(TypeName, "subject")
	if err != nil {
		return nil, err
	}

	return &Sink{
		name:       name,
		url:        args.String("url", nats.DefaultURL),
		subject:    subject,
		maxRetries: args.Int("max_retries", 0),
		logger:     deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open connects to the NATS server
func (s *Sink) Open(ctx context.Context) error {
	cfg := retry.Reconnect()
	cfg.MaxAttempts = s.maxRetries

	err := retry.Do(ctx, cfg, func() error {
		conn, err := nats.Connect(s.url,
			nats.Timeout(10*time.Second),
			nats.RetryOnFailedConnect(false),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			s.logger.Warn("connection attempt failed", "url", s.url, "error", err)
			return err
		}
		s.conn = conn
		return nil
	})
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: connecting to %s: %v", errors.ErrMaxRetriesExceeded, s.url, err),
			TypeName, "Open", "connection establishment")
	}

	s.logger.Info("connected", "url", s.url, "subject", s.subject)
	return nil
}

// Write publishes one record and flushes, so returning nil means the
// server accepted the message.
func (s *Sink) Write(ctx context.Context, rec event.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		s.logger.Error("dropping unserializable record", "error", err)
		return nil
	}

	cfg := retry.Reconnect()
	cfg.MaxAttempts = s.maxRetries

	err = retry.Do(ctx, cfg, func() error {
		if err := s.conn.Publish(s.subject, line); err != nil {
			return err
		}
		return s.conn.FlushTimeout(10 * time.Second)
	})
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: publishing to %s: %v", errors.ErrMaxRetriesExceeded, s.subject, err),
			TypeName, "Write", "publish")
	}
	return nil
}

// Close drains and closes the connection
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn = nil
	return err
}

// Register registers the nats sink with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSinkType(TypeName, New)
}
