// Package udpsocket provides the udp_socket sink: one JSON-serialized
// datagram per record, fire and forget. UDP gives no delivery guarantee,
// so this sink is documented lossy; records are acknowledged after the
// local send.
package udpsocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this sink
const TypeName = "udp_socket"

// Sink sends records as UDP datagrams
type Sink struct {
	name    string
	address string
	logger  *slog.Logger
	conn    net.Conn
}

// New creates a udp_socket sink from its configured arguments
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	host, err := args.RequiredString(TypeName, "host")
	if err != nil {
		return nil, err
	}
	port, err := args.RequiredInt(TypeName, "port")
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, errors.WrapFatal(
			fmt.Errorf("port %d outside valid range 1-65535", port),
			TypeName, "New", "port check")
	}

	return &Sink{
		name:    name,
		address: net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		logger:  deps.ComponentLogger(TypeName, name),
	}, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open resolves the destination; UDP has no handshake to fail
func (s *Sink) Open(context.Context) error {
	conn, err := net.Dial("udp", s.address)
	if err != nil {
		return errors.WrapFatal(err, TypeName, "Open", "resolving destination")
	}
	s.conn = conn
	return nil
}

// Write sends one datagram. Send errors are logged, not returned — a lossy
// transport does not get to wedge the route.
func (s *Sink) Write(_ context.Context, rec event.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		s.logger.Error("dropping unserializable record", "error", err)
		return nil
	}

	if _, err := s.conn.Write(line); err != nil {
		s.logger.Warn("datagram send failed", "address", s.address, "error", err)
	}
	return nil
}

// Close releases the socket
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Register registers the udp_socket sink with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSinkType(TypeName, New)
}
