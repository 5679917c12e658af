// Package metrics exposes beacon's runtime counters and gauges over
// Prometheus' text exposition format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and gauge beacon reports. Callers obtain one
// via New and pass it down to the transport, session and chunk-streaming
// layers rather than reaching for package-level globals.
type Metrics struct {
	registry *prometheus.Registry

	RakNetSessionsActive   prometheus.Gauge
	RakNetPacketsSent      prometheus.Counter
	RakNetPacketsReceived  prometheus.Counter
	RakNetPacketsResent    prometheus.Counter
	RakNetAckRangesInFlight prometheus.Gauge

	BedrockPacketsIn       prometheus.Counter
	BedrockPacketsOut      prometheus.Counter
	BedrockCompressedBytes prometheus.Counter
	BedrockPlaintextBytes  prometheus.Counter

	NetherNetPeersActive      prometheus.Gauge
	NetherNetReassemblyDrops  prometheus.Counter
	NetherNetSignalingErrors  prometheus.Counter

	ChunksSent    prometheus.Counter
	ChunksDropped prometheus.Counter
	ChunkQueueDepth prometheus.Gauge
}

// New builds a Metrics bound to a private registry, so repeated calls in
// tests don't collide on the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RakNetSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "raknet",
			Name:      "sessions_active",
			Help:      "Number of RakNet sessions currently connected.",
		}),
		RakNetPacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "raknet",
			Name:      "packets_sent_total",
			Help:      "Datagrams sent across all RakNet sessions.",
		}),
		RakNetPacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "raknet",
			Name:      "packets_received_total",
			Help:      "Datagrams received across all RakNet sessions.",
		}),
		RakNetPacketsResent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "raknet",
			Name:      "packets_resent_total",
			Help:      "Datagrams retransmitted after an RTO or NACK.",
		}),
		RakNetAckRangesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "raknet",
			Name:      "ack_ranges_in_flight",
			Help:      "Unacknowledged datagram ranges awaiting ACK across all sessions.",
		}),

		BedrockPacketsIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "bedrock",
			Name:      "packets_in_total",
			Help:      "Game packets decoded from clients.",
		}),
		BedrockPacketsOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "bedrock",
			Name:      "packets_out_total",
			Help:      "Game packets encoded to clients.",
		}),
		BedrockCompressedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "bedrock",
			Name:      "compressed_bytes_total",
			Help:      "Bytes written to the wire after compression.",
		}),
		BedrockPlaintextBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "bedrock",
			Name:      "plaintext_bytes_total",
			Help:      "Bytes handed to compression before encoding.",
		}),

		NetherNetPeersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "nethernet",
			Name:      "peers_active",
			Help:      "WebRTC peers currently connected.",
		}),
		NetherNetReassemblyDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "nethernet",
			Name:      "reassembly_drops_total",
			Help:      "Messages dropped due to out-of-order, overflowing or stale fragment reassembly.",
		}),
		NetherNetSignalingErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "nethernet",
			Name:      "signaling_errors_total",
			Help:      "Errors encountered talking to LAN or Xbox Live signaling.",
		}),

		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "chunks",
			Name:      "sent_total",
			Help:      "Chunk columns sent to players.",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "chunks",
			Name:      "dropped_total",
			Help:      "Chunk sends dropped because a player's outbound queue was full.",
		}),
		ChunkQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "chunks",
			Name:      "queue_depth",
			Help:      "Chunks currently queued for load across all players.",
		}),
	}
}

// Server serves the /metrics endpoint over HTTP until the context is
// cancelled or Shutdown is called.
type Server struct {
	http *http.Server
}

// NewServer wires m's registry into an HTTP server listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks until the server stops, returning nil on a clean
// shutdown via Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
