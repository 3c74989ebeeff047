// Package metrics exposes the Prometheus collectors for the server,
// grounded on the teacher's metrics.go (manual NewCounter/NewGauge + a
// single init-time MustRegister block rather than promauto).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emberdb_connections_total",
		Help: "Total number of client connections accepted.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_connections_active",
		Help: "Current number of open client connections.",
	})

	ConnectionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emberdb_connections_rejected_total",
		Help: "Connections refused by admission control.",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emberdb_commands_total",
		Help: "Commands processed, by name and outcome.",
	}, []string{"cmd", "outcome"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "emberdb_command_duration_seconds",
		Help:    "Command handling latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cmd"})

	KeyspaceKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_keyspace_keys",
		Help: "Number of keys currently in the keyspace (including not-yet-swept expired keys).",
	})

	BlockedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_blocked_clients",
		Help: "Clients currently parked in BLPOP.",
	})

	ReplicationOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_replication_offset_bytes",
		Help: "Master replication offset, or the replica's applied offset.",
	})

	ConnectedReplicas = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_connected_replicas",
		Help: "Number of replica sinks currently registered on the master.",
	})

	ReplicaLinkUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emberdb_replica_link_up",
		Help: "1 if this replica's connection to its master is established, else 0.",
	})

	RateLimitedCommands = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emberdb_rate_limited_commands_total",
		Help: "Commands rejected by the per-connection rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		ConnectionsRejected,
		CommandsTotal,
		CommandDuration,
		KeyspaceKeys,
		BlockedClients,
		ReplicationOffset,
		ConnectedReplicas,
		ReplicaLinkUp,
		RateLimitedCommands,
	)
}

// Handler returns the HTTP handler used to serve /metrics, mirroring the
// teacher's handleMetrics wrapper around promhttp.Handler().
func Handler() http.Handler {
	return promhttp.Handler()
}
