// Package socket provides the stream-socket sinks: tcp_socket and
// unix_socket. Both hold one persistent connection, write JSON-serialized
// lines, and reconnect with jittered exponential backoff. During
// reconnection Write blocks, so back-pressure propagates upstream and no
// record is dropped.
//
// A successful local write counts as delivery; there is no application
// level acknowledgement from the consuming peer.
package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pkg/retry"
	"github.com/log-store/log-ship/plugin"
)

// Configuration type names registered by this package
const (
	TCPTypeName  = "tcp_socket"
	UnixTypeName = "unix_socket"
)

// DialTimeout bounds a single connection attempt
const DialTimeout = 10 * time.Second

// Sink writes newline-delimited JSON over a stream socket
type Sink struct {
	name       string
	network    string // "tcp" or "unix"
	address    string
	maxRetries int // reconnect ceiling; 0 retries forever
	logger     *slog.Logger

	conn net.Conn
}

// NewTCP creates a tcp_socket sink from its configured arguments
func NewTCP(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	host, err := args.RequiredString(TCPTypeName, "host")
	if err != nil {
		return nil, err
	}
	port, err := args.RequiredInt(TCPTypeName, "port")
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, errors.WrapFatal(
			fmt.Errorf("port %d outside valid range 1-65535", port),
			TCPTypeName, "NewTCP", "port check")
	}

	return &Sink{
		name:       name,
		network:    "tcp",
		address:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		maxRetries: args.Int("max_retries", 0),
		logger:     deps.ComponentLogger(TCPTypeName, name),
	}, nil
}

// NewUnix creates a unix_socket sink from its configured arguments
func NewUnix(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	path, err := args.RequiredString(UnixTypeName, "path")
	if err != nil {
		return nil, err
	}

	return &Sink{
		name:       name,
		network:    "unix",
		address:    path,
		maxRetries: args.Int("max_retries", 0),
		logger:     deps.ComponentLogger(UnixTypeName, name),
	}, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open establishes the initial connection, applying the same backoff and
// ceiling as reconnection.
func (s *Sink) Open(ctx context.Context) error {
	return s.reconnect(ctx)
}

// reconnect dials until a connection is established or the retry ceiling
// is exhausted, which is fatal for the route.
func (s *Sink) reconnect(ctx context.Context) error {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	cfg := retry.Reconnect()
	cfg.MaxAttempts = s.maxRetries

	attempt := 0
	err := retry.Do(ctx, cfg, func() error {
		attempt++
		conn, err := net.DialTimeout(s.network, s.address, DialTimeout)
		if err != nil {
			s.logger.Warn("connection attempt failed", "address", s.address, "attempt", attempt, "error", err)
			return err
		}
		s.conn = conn
		return nil
	})
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: connecting to %s: %v", errors.ErrMaxRetriesExceeded, s.address, err),
			s.network+"_socket", "reconnect", "connection establishment")
	}

	s.logger.Info("connected", "address", s.address)
	return nil
}

// Write delivers one record as a JSON line. On a write failure the
// connection is re-established and the same record is written again;
// returning nil acknowledges the record.
func (s *Sink) Write(ctx context.Context, rec event.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		// Unserializable payload: drop rather than wedge the route
		s.logger.Error("dropping unserializable record", "error", err)
		return nil
	}
	line = append(line, '\n')

	for {
		if s.conn == nil {
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		}

		if _, err := s.conn.Write(line); err == nil {
			return nil
		} else {
			s.logger.Warn("write failed, reconnecting", "address", s.address, "error", err)
			_ = s.conn.Close()
			s.conn = nil
		}

		if ctx.Err() != nil {
			return errors.WrapTransient(ctx.Err(), s.network+"_socket", "Write", "remote write")
		}
	}
}

// Close tears the connection down
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Register registers both socket sinks with the given registry
func Register(registry *plugin.Registry) error {
	if err := registry.RegisterSinkType(TCPTypeName, NewTCP); err != nil {
		return err
	}
	return registry.RegisterSinkType(UnixTypeName, NewUnix)
}
