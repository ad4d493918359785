// Package metrics exposes the Prometheus counters/gauges a running peer
// carries as ambient observability, the natural evolution of the
// teacher's bespoke PING/PONG health server (cmd/coordinator/main.go's
// startHealthServer) into the standard exposition format.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ElectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_elections_started_total",
		Help: "Number of Bully elections this peer has initiated.",
	})
	ElectionsWon = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_elections_won_total",
		Help: "Number of Bully elections this peer has won (self-declared coordinator).",
	})
	CoordinatorChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_coordinator_changes_total",
		Help: "Number of times this peer's believed coordinator has changed.",
	})
	HeartbeatsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_heartbeats_sent_total",
		Help: "Number of HEARTBEAT frames sent.",
	})
	HeartbeatsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_heartbeats_received_total",
		Help: "Number of HEARTBEAT frames received.",
	})
	FailureDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_coordinator_suspected_total",
		Help: "Number of times the Failure Detector suspected the coordinator.",
	})
	MembershipSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peerchat_membership_size",
		Help: "Current number of known members.",
	})
)

// Registry is a dedicated Prometheus registry (rather than the global
// default) so repeated test setup doesn't panic on duplicate
// registration across package-level test runs.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ElectionsStarted,
		ElectionsWon,
		CoordinatorChanges,
		HeartbeatsSent,
		HeartbeatsReceived,
		FailureDetections,
		MembershipSize,
	)
}
