package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/swarm/internal/cluster"
)

var (
	// ErrQueueFull is returned by Submit when the task queue is at capacity.
	ErrQueueFull = errors.New("task queue full")
	// ErrNotAccepting is returned by Submit when the node is not in a state
	// that accepts work.
	ErrNotAccepting = errors.New("node not accepting tasks")
	// ErrChildLimit is returned by SpawnChild when the child ceiling is reached.
	ErrChildLimit = errors.New("child limit reached")
	// ErrNotHealthy is returned by SpawnChild outside the HEALTHY state.
	ErrNotHealthy = errors.New("node not healthy")
)

// State represents the lifecycle state of a node
type State string

const (
	// StateInitializing means the node was created but not started
	StateInitializing State = "initializing"
	// StateHealthy means the node is processing tasks
	StateHealthy State = "healthy"
	// StateSpawning means the node is creating a child
	StateSpawning State = "spawning"
	// StateDegraded means the node failed too often and stopped pulling work
	StateDegraded State = "degraded"
	// StateTerminated means the node was stopped; terminal
	StateTerminated State = "terminated"
)

// Metrics is a point-in-time snapshot of a node's counters.
type Metrics struct {
	QueueSize       int       `json:"queue_size"`
	TasksCompleted  uint64    `json:"tasks_completed"`
	TasksFailed     uint64    `json:"tasks_failed"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	LastHealthCheck time.Time `json:"last_health_check"`
}

// Status is the externally visible view of a node.
type Status struct {
	ID       string  `json:"node_id"`
	ParentID string  `json:"parent_id,omitempty"`
	State    State   `json:"state"`
	Children int     `json:"children_count"`
	Metrics  Metrics `json:"metrics"`
}

// Config carries the tunables for a single node.
type Config struct {
	// MaxQueueSize bounds the task queue; Submit rejects beyond it.
	MaxQueueSize int
	// SpawnThreshold is the queue-load fraction (0,1] above which a healthy
	// node spawns a child.
	SpawnThreshold float64
	// MaxChildren bounds how many children one node may spawn.
	MaxChildren int
	// DegradeFailureThreshold and DegradeCompletionFloor drive the degrade
	// rule: more failures than the threshold while completions stay under
	// the floor marks the node DEGRADED.
	DegradeFailureThreshold uint64
	DegradeCompletionFloor  uint64
	// IdleCheckInterval is how long the worker waits for a task before
	// running a health check.
	IdleCheckInterval time.Duration
}

// DefaultConfig returns the stock node tuning.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:            100,
		SpawnThreshold:          0.8,
		MaxChildren:             5,
		DegradeFailureThreshold: 10,
		DegradeCompletionFloor:  5,
		IdleCheckInterval:       time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.SpawnThreshold <= 0 {
		c.SpawnThreshold = d.SpawnThreshold
	}
	if c.MaxChildren < 0 {
		c.MaxChildren = d.MaxChildren
	}
	if c.DegradeFailureThreshold == 0 {
		c.DegradeFailureThreshold = d.DegradeFailureThreshold
	}
	if c.DegradeCompletionFloor == 0 {
		c.DegradeCompletionFloor = d.DegradeCompletionFloor
	}
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = d.IdleCheckInterval
	}
	return c
}

// ResultSink receives the terminal result of every task a node processes.
type ResultSink func(cluster.TaskResult)

// AdoptFunc admits a parent-spawned child into cluster ownership. The
// adopter is responsible for starting the child; a non-nil error aborts the
// spawn and the child never runs.
type AdoptFunc func(child *Node) error

type envelope struct {
	task       cluster.Task
	enqueuedAt time.Time
}

// Node is an autonomous worker: one bounded FIFO queue, one processing
// goroutine, and the ability to spawn children under sustained overload.
type Node struct {
	id       string
	parentID string
	cfg      Config

	registry *cluster.HandlerRegistry
	sink     ResultSink
	adopt    AdoptFunc

	queue     chan envelope
	createdAt time.Time

	mu       sync.RWMutex
	state    State
	children []*Node
	metrics  Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a node in the INITIALIZING state. An empty id is replaced
// with a generated UUID. The registry supplies task handlers; sink, when
// non-nil, receives every task's terminal result.
func New(id, parentID string, cfg Config, registry *cluster.HandlerRegistry, sink ResultSink) *Node {
	if id == "" {
		id = uuid.New().String()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		id:        id,
		parentID:  parentID,
		cfg:       cfg,
		registry:  registry,
		sink:      sink,
		queue:     make(chan envelope, cfg.MaxQueueSize),
		createdAt: time.Now(),
		state:     StateInitializing,
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	stateGauge.WithLabelValues(n.id, string(StateInitializing)).Set(1)
	log.Printf("Node %s initialized (queue=%d)", n.id, cfg.MaxQueueSize)
	return n
}

// SetAdopter installs the cluster admission hook for children this node
// spawns. Must be called before Start.
func (n *Node) SetAdopter(fn AdoptFunc) {
	n.adopt = fn
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// ParentID returns the id of the node that spawned this one, if any.
func (n *Node) ParentID() string { return n.parentID }

// State returns the current lifecycle state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// QueueLen returns the number of queued tasks.
func (n *Node) QueueLen() int {
	return len(n.queue)
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	children := make([]*Node, len(n.children))
	copy(children, n.children)
	return children
}

// Start transitions an INITIALIZING node to HEALTHY and launches its
// processing goroutine. Repeat calls are no-ops; a TERMINATED node cannot
// be restarted.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateTerminated {
		log.Printf("Node %s is terminated and cannot be restarted", n.id)
		return
	}
	if n.started {
		log.Printf("Node %s already started", n.id)
		return
	}
	n.started = true
	n.setStateLocked(StateHealthy)
	n.wg.Add(1)
	go n.run()
	log.Printf("Node %s started", n.id)
}

// Stop terminates the node: cancels the processing loop, waits for it to
// exit, then cascades to children. Safe to call more than once; later
// callers block until the first stop completes.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.setStateLocked(StateTerminated)
		children := make([]*Node, len(n.children))
		copy(children, n.children)
		n.mu.Unlock()

		n.cancel()
		n.wg.Wait()

		for _, child := range children {
			child.Stop()
		}
		close(n.stopped)
		log.Printf("Node %s stopped", n.id)
	})
	<-n.stopped
}

// Submit queues a task for processing. It never blocks: a full queue
// returns ErrQueueFull immediately. A successful enqueue may trigger a
// child spawn when the queue load crosses the spawn threshold.
func (n *Node) Submit(task cluster.Task) error {
	n.mu.RLock()
	state := n.state
	n.mu.RUnlock()
	if state != StateHealthy && state != StateSpawning {
		return fmt.Errorf("%w: node %s is %s", ErrNotAccepting, n.id, state)
	}

	select {
	case n.queue <- envelope{task: task, enqueuedAt: time.Now()}:
	default:
		return ErrQueueFull
	}
	queueDepth.WithLabelValues(n.id).Set(float64(len(n.queue)))

	if n.shouldSpawn() {
		if _, err := n.SpawnChild(); err != nil {
			log.Printf("Node %s overloaded but cannot spawn child: %v", n.id, err)
		}
	}
	return nil
}

// shouldSpawn applies the overload rule after an enqueue.
func (n *Node) shouldSpawn() bool {
	load := float64(len(n.queue)) / float64(n.cfg.MaxQueueSize)
	if load <= n.cfg.SpawnThreshold {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state == StateHealthy && len(n.children) < n.cfg.MaxChildren
}

// SpawnChild creates and starts a child node sharing this node's config,
// handler registry, and result sink. The node passes through SPAWNING for
// the duration and returns to HEALTHY whether or not the spawn succeeded.
func (n *Node) SpawnChild() (*Node, error) {
	n.mu.Lock()
	if n.state != StateHealthy {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrNotHealthy, n.state)
	}
	if len(n.children) >= n.cfg.MaxChildren {
		n.mu.Unlock()
		return nil, ErrChildLimit
	}
	n.setStateLocked(StateSpawning)
	n.mu.Unlock()

	child := New("", n.id, n.cfg, n.registry, n.sink)
	child.adopt = n.adopt

	var err error
	if n.adopt != nil {
		err = n.adopt(child)
	} else {
		child.Start()
	}

	n.mu.Lock()
	if n.state == StateTerminated {
		// Stopped mid-spawn; the child must not outlive the parent.
		n.mu.Unlock()
		child.Stop()
		return nil, fmt.Errorf("%w: node terminated during spawn", ErrNotHealthy)
	}
	defer n.mu.Unlock()
	if err != nil {
		n.setStateLocked(StateHealthy)
		return nil, fmt.Errorf("spawn child: %w", err)
	}
	n.children = append(n.children, child)
	n.setStateLocked(StateHealthy)
	spawnsTotal.WithLabelValues(n.id).Inc()
	log.Printf("Node %s spawned child %s", n.id, child.id)
	return child, nil
}

// HealthCheck refreshes uptime bookkeeping and applies the degrade rule.
// The processing loop calls it on every idle tick; callers may also invoke
// it directly.
func (n *Node) HealthCheck() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics.UptimeSeconds = time.Since(n.createdAt).Seconds()
	n.metrics.LastHealthCheck = time.Now()
	n.metrics.QueueSize = len(n.queue)

	if n.state == StateHealthy &&
		n.metrics.TasksFailed > n.cfg.DegradeFailureThreshold &&
		n.metrics.TasksCompleted < n.cfg.DegradeCompletionFloor {
		n.setStateLocked(StateDegraded)
		log.Printf("Node %s degraded (failed=%d completed=%d)",
			n.id, n.metrics.TasksFailed, n.metrics.TasksCompleted)
	}
}

// Metrics returns a snapshot of the node's counters.
func (n *Node) Metrics() Metrics {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m := n.metrics
	m.QueueSize = len(n.queue)
	m.UptimeSeconds = time.Since(n.createdAt).Seconds()
	return m
}

// Status returns the externally visible view of the node.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m := n.metrics
	m.QueueSize = len(n.queue)
	m.UptimeSeconds = time.Since(n.createdAt).Seconds()
	return Status{
		ID:       n.id,
		ParentID: n.parentID,
		State:    n.state,
		Children: len(n.children),
		Metrics:  m,
	}
}

// run is the processing loop: one task at a time in arrival order, with a
// health check whenever the queue stays empty for an idle interval.
func (n *Node) run() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.IdleCheckInterval)
	defer ticker.Stop()

	for {
		if n.State() == StateDegraded {
			log.Printf("Node %s degraded, worker exiting", n.id)
			return
		}
		select {
		case <-n.ctx.Done():
			return
		case env := <-n.queue:
			n.process(env)
		case <-ticker.C:
			n.HealthCheck()
		}
	}
}

// process runs one task through its handler and delivers the terminal
// result. Handler errors and panics mark the task failed; they never crash
// the loop.
func (n *Node) process(env envelope) {
	start := time.Now()
	payload, err := n.invoke(env.task)
	elapsed := time.Since(start)

	result := cluster.TaskResult{
		TaskID:   env.task.ID,
		NodeID:   n.id,
		Duration: elapsed,
	}
	if err != nil {
		result.Status = cluster.StatusFailed
		result.Error = err.Error()
		n.mu.Lock()
		n.metrics.TasksFailed++
		n.mu.Unlock()
		tasksTotal.WithLabelValues(n.id, "failure").Inc()
		log.Printf("Node %s task %s failed: %v", n.id, env.task.ID, err)
	} else {
		result.Status = cluster.StatusProcessed
		result.Payload = payload
		n.mu.Lock()
		n.metrics.TasksCompleted++
		n.mu.Unlock()
		tasksTotal.WithLabelValues(n.id, "success").Inc()
	}
	taskDuration.WithLabelValues(n.id).Observe(elapsed.Seconds())
	queueDepth.WithLabelValues(n.id).Set(float64(len(n.queue)))

	if n.sink != nil {
		n.sink(result)
	}
}

// invoke looks up and runs the handler for one task, converting panics
// into errors.
func (n *Node) invoke(task cluster.Task) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if n.registry == nil {
		return nil, cluster.ErrNoHandler
	}
	handler, err := n.registry.Lookup(task.Kind)
	if err != nil {
		return nil, err
	}
	return handler(n.ctx, task)
}

// setStateLocked transitions the node state and keeps the state gauge in
// step. Callers hold n.mu.
func (n *Node) setStateLocked(s State) {
	if n.state == s {
		return
	}
	stateGauge.WithLabelValues(n.id, string(n.state)).Set(0)
	stateGauge.WithLabelValues(n.id, string(s)).Set(1)
	log.Printf("Node %s state: %s -> %s", n.id, n.state, s)
	n.state = s
}
