package mesh

import "github.com/prometheus/client_golang/prometheus"

var (
	peersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_mesh_peers",
			Help: "Registered peers per router.",
		},
		[]string{"router_id"},
	)

	routesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_mesh_routes",
			Help: "Routing table entries per router.",
		},
		[]string{"router_id"},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_mesh_messages_total",
			Help: "Envelopes delivered per router by message type.",
		},
		[]string{"router_id", "type"},
	)

	sendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarm_mesh_send_latency_seconds",
			Help:    "Send latency per destination.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"router_id", "destination"},
	)

	routeMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_mesh_route_misses_total",
			Help: "Sends that found no route to the destination.",
		},
		[]string{"router_id"},
	)
)

func init() {
	prometheus.MustRegister(peersGauge, routesGauge, messagesTotal, sendLatency, routeMisses)
}
