package fabric

import "github.com/prometheus/client_golang/prometheus"

var (
	nodesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_fabric_nodes",
			Help: "Nodes currently tracked by the fabric.",
		},
		[]string{"fabric_id"},
	)

	spawnEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_fabric_spawn_events_total",
			Help: "Nodes created or adopted by the fabric.",
		},
		[]string{"fabric_id"},
	)

	healingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_fabric_healing_events_total",
			Help: "Terminated nodes reaped by the healing loop.",
		},
		[]string{"fabric_id"},
	)
)

func init() {
	prometheus.MustRegister(nodesGauge, spawnEvents, healingEvents)
}
