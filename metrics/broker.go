// Package metrics exposes Prometheus instrumentation for the broker's
// accept/forward loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broker wraps the collectors tracking a single broker instance's
// lifetime. The zero value is not usable; construct with NewBroker.
type Broker struct {
	registry *prometheus.Registry

	ClientsConnected  prometheus.Gauge
	ClientsTotal      prometheus.Counter
	MessagesForwarded prometheus.Counter
	ForwardErrors     prometheus.Counter
	AuthFailures      prometheus.Counter
	HandshakeTimeouts prometheus.Counter
}

// NewBroker builds and registers a fresh set of broker collectors under
// namespace. Pass an empty namespace to use the default "pubsub" prefix.
func NewBroker(namespace string) *Broker {
	if namespace == "" {
		namespace = "pubsub"
	}
	registry := prometheus.NewRegistry()

	b := &Broker{
		registry: registry,
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "clients_connected",
			Help:      "Number of endpoint connections currently held in the client set.",
		}),
		ClientsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "clients_total",
			Help:      "Total number of endpoint connections admitted since startup.",
		}),
		MessagesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_forwarded_total",
			Help:      "Total number of (source, destination) payload forwards completed.",
		}),
		ForwardErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "forward_errors_total",
			Help:      "Total number of forwarding attempts that failed, whether the destination was closed or the unencodable message was dropped.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "auth_failures_total",
			Help:      "Total number of connections dropped for failing the authentication handshake.",
		}),
		HandshakeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "handshake_timeouts_total",
			Help:      "Total number of connections dropped for not completing the handshake in time.",
		}),
	}

	registry.MustRegister(
		b.ClientsConnected,
		b.ClientsTotal,
		b.MessagesForwarded,
		b.ForwardErrors,
		b.AuthFailures,
		b.HandshakeTimeouts,
	)
	return b
}

// Registry returns the collector registry backing this Broker's metrics,
// suitable for mounting on an HTTP handler (e.g. promhttp.HandlerFor).
func (b *Broker) Registry() *prometheus.Registry {
	return b.registry
}
