package node

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_node_tasks_total",
			Help: "Tasks processed per node by outcome.",
		},
		[]string{"node_id", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarm_node_task_duration_seconds",
			Help:    "Task processing time per node.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_id"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_node_queue_depth",
			Help: "Queued tasks per node.",
		},
		[]string{"node_id"},
	)

	spawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_node_spawn_events_total",
			Help: "Child nodes spawned per parent.",
		},
		[]string{"parent_id"},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_node_state",
			Help: "Current node state (1 for the active state).",
		},
		[]string{"node_id", "state"},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, taskDuration, queueDepth, spawnsTotal, stateGauge)
}
