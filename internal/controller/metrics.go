package controller

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_controller_tasks_total",
			Help: "Execute outcomes by result status.",
		},
		[]string{"controller_id", "status"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_controller_errors_total",
			Help: "Internal errors by kind.",
		},
		[]string{"controller_id", "error_kind"},
	)

	latencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarm_controller_latency_seconds",
			Help:    "End-to-end latency of successfully processed tasks.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"controller_id"},
	)

	activeNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_controller_active_nodes",
			Help: "Nodes currently available to the controller.",
		},
		[]string{"controller_id"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_controller_queue_depth",
			Help: "Tasks waiting in the controller's dispatch queue.",
		},
		[]string{"controller_id"},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, errorsTotal, latencySeconds, activeNodes, queueDepth)
}
