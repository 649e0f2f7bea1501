// Package speedtest provides the speed_test sink: it counts records and
// reports the rate per second to the process log. It acknowledges records
// without forwarding them anywhere, which makes it unsuitable for
// production — records it acks are gone.
package speedtest

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this sink
const TypeName = "speed_test"

// Sink measures route throughput
type Sink struct {
	name   string
	logger *slog.Logger

	count       int64
	windowStart time.Time
	rateGauge   prometheus.Gauge
	now         func() time.Time
}

// New creates a speed_test sink; it takes no arguments
func New(name string, _ plugin.Args, deps plugin.Dependencies) (plugin.Sink, error) {
	s := &Sink{
		name:   name,
		logger: deps.ComponentLogger(TypeName, name),
		now:    time.Now,
	}

	if deps.Metrics != nil {
		s.rateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "logship",
			Subsystem:   "speed_test",
			Name:        "records_per_second",
			Help:        "Measured route throughput",
			ConstLabels: prometheus.Labels{"plugin": name},
		})
		_ = deps.Metrics.RegisterGauge("speed_test_"+name, "records_per_second", s.rateGauge)
	}

	return s, nil
}

// Name implements plugin.Sink
func (s *Sink) Name() string { return s.name }

// Open implements plugin.Sink
func (s *Sink) Open(context.Context) error {
	s.windowStart = s.now()
	return nil
}

// Write counts the record and reports the rate once a second
func (s *Sink) Write(context.Context, event.Record) error {
	s.count++

	elapsed := s.now().Sub(s.windowStart).Seconds()
	if elapsed > 1.0 {
		rate := float64(s.count) / elapsed
		s.logger.Info("route throughput", "records_per_sec", rate)
		if s.rateGauge != nil {
			s.rateGauge.Set(rate)
		}
		s.count = 0
		s.windowStart = s.now()
	}
	return nil
}

// Close reports the final window
func (s *Sink) Close() error {
	elapsed := s.now().Sub(s.windowStart).Seconds()
	if elapsed > 0 && s.count > 0 {
		s.logger.Info("route throughput", "records_per_sec", float64(s.count)/elapsed)
	}
	return nil
}

// Register registers the speed_test sink with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSinkType(TypeName, New)
}
