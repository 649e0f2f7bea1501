package metric

import "github.com/prometheus/client_golang/prometheus"

// RouteMetrics holds the per-route pipeline counters
type RouteMetrics struct {
	RecordsRead    prometheus.Counter
	RecordsShipped prometheus.Counter
	RecordsDropped prometheus.Counter
	AcksAggregated prometheus.Counter
}

// NewRouteMetrics creates and registers counters for one route. Returns nil
// when registry is nil, so callers guard with a nil check (nil input = nil
// feature).
func NewRouteMetrics(registry *Registry, routeID string) *RouteMetrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"route": routeID}
	m := &RouteMetrics{
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logship",
			Subsystem:   "route",
			Name:        "records_read_total",
			Help:        "Records emitted by the route's source",
			ConstLabels: labels,
		}),
		RecordsShipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logship",
			Subsystem:   "route",
			Name:        "records_shipped_total",
			Help:        "Records acknowledged by every sink",
			ConstLabels: labels,
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logship",
			Subsystem:   "route",
			Name:        "records_dropped_total",
			Help:        "Records dropped by transforms or parse failures",
			ConstLabels: labels,
		}),
		AcksAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logship",
			Subsystem:   "route",
			Name:        "acks_aggregated_total",
			Help:        "Fan-out acknowledgement rounds completed",
			ConstLabels: labels,
		}),
	}

	component := "route_" + routeID
	_ = registry.RegisterCounter(component, "records_read", m.RecordsRead)
	_ = registry.RegisterCounter(component, "records_shipped", m.RecordsShipped)
	_ = registry.RegisterCounter(component, "records_dropped", m.RecordsDropped)
	_ = registry.RegisterCounter(component, "acks_aggregated", m.AcksAggregated)

	return m
}
