package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/fabric"
	"github.com/dreamware/swarm/internal/mesh"
	"github.com/dreamware/swarm/internal/node"
)

var (
	// ErrNotRunning is returned by Execute outside the running state.
	ErrNotRunning = errors.New("controller not running")

	// ErrTaskTimeout is returned when a task does not resolve within
	// ExecuteTimeout.
	ErrTaskTimeout = errors.New("task execution timeout")

	// ErrNoNodes is returned when no healthy node could take the task.
	ErrNoNodes = errors.New("no available nodes")

	// ErrBusy is returned when the controller's own queue is full.
	ErrBusy = errors.New("controller queue full")

	// ErrDuplicateTask is returned when a task id is already pending.
	ErrDuplicateTask = errors.New("task id already pending")
)

// State is the controller lifecycle state.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateStopped     State = "stopped"
)

// Config tunes a controller.
type Config struct {
	// ID names the controller in logs and metrics.
	ID string

	// ExecuteTimeout bounds how long Execute waits for a result.
	ExecuteTimeout time.Duration

	// ScaleUpThreshold and ScaleDownThreshold are average queue depths:
	// above the first the cluster grows, below the second it shrinks
	// (never under one node).
	ScaleUpThreshold   int
	ScaleDownThreshold int

	// QueueCapacity bounds the controller's own dispatch queue.
	QueueCapacity int

	// DispatchIdleInterval is the gauge-refresh cadence of an idle
	// dispatch loop; MetricsInterval drives the periodic summary.
	DispatchIdleInterval time.Duration
	MetricsInterval      time.Duration

	// AutoScale enables the scaling check after each dispatch.
	AutoScale bool
}

// DefaultConfig returns the standard controller tuning.
func DefaultConfig() Config {
	return Config{
		ID:                   "controller",
		ExecuteTimeout:       30 * time.Second,
		ScaleUpThreshold:     50,
		ScaleDownThreshold:   10,
		QueueCapacity:        256,
		DispatchIdleInterval: time.Second,
		MetricsInterval:      5 * time.Second,
		AutoScale:            true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = d.ExecuteTimeout
	}
	if c.ScaleUpThreshold <= 0 {
		c.ScaleUpThreshold = d.ScaleUpThreshold
	}
	if c.ScaleDownThreshold <= 0 {
		c.ScaleDownThreshold = d.ScaleDownThreshold
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.DispatchIdleInterval <= 0 {
		c.DispatchIdleInterval = d.DispatchIdleInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	return c
}

// Status is the controller's externally visible state.
type Status struct {
	ControllerID   string        `json:"controller_id"`
	State          State         `json:"state"`
	NodeCount      int           `json:"nodes_count"`
	MaxNodes       int           `json:"max_nodes"`
	TasksProcessed uint64        `json:"tasks_processed"`
	TasksFailed    uint64        `json:"tasks_failed"`
	QueueSize      int           `json:"queue_size"`
	Nodes          []node.Status `json:"nodes_status"`
	UptimeSeconds  float64       `json:"uptime_seconds"`
}

// Health is the controller's liveness summary.
type Health struct {
	Healthy      bool  `json:"healthy"`
	State        State `json:"state"`
	NodesTotal   int   `json:"nodes_total"`
	NodesHealthy int   `json:"nodes_healthy"`
	TasksQueued  int   `json:"tasks_queued"`
}

// Controller fronts a fabric of worker nodes: Execute correlates each
// submitted task with the result its node eventually reports, dispatch
// picks the least-loaded healthy node, and the autoscale check grows or
// shrinks the fabric around the configured queue-depth band.
type Controller struct {
	id     string
	cfg    Config
	fabric *fabric.Fabric

	queue chan cluster.Task

	mu             sync.Mutex
	state          State
	pending        map[string]chan cluster.TaskResult
	tasksProcessed uint64
	tasksFailed    uint64
	errorsByKind   map[string]uint64

	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopped   chan struct{}
}

// New creates a controller and the fabric it manages. Tasks resolve
// through registry on the fabric's nodes; mesh traffic flows through
// transport (nil means NopTransport).
func New(cfg Config, fabricCfg fabric.Config, registry *cluster.HandlerRegistry, transport mesh.Transport) *Controller {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:           cfg.ID,
		cfg:          cfg,
		queue:        make(chan cluster.Task, cfg.QueueCapacity),
		state:        StateInitialized,
		pending:      make(map[string]chan cluster.TaskResult),
		errorsByKind: make(map[string]uint64),
		createdAt:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
	}
	c.fabric = fabric.New(fabricCfg, registry, c.handleResult, transport)
	log.Printf("Controller %s initialized", c.id)
	return c
}

// ID returns the controller's id.
func (c *Controller) ID() string { return c.id }

// Fabric returns the fabric this controller manages.
func (c *Controller) Fabric() *fabric.Fabric { return c.fabric }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start brings up the fabric, ensures an initial node exists, and
// launches the dispatch and metrics loops.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateInitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller %s cannot start from state %s", c.id, state)
	}
	c.state = StateRunning
	c.mu.Unlock()

	c.fabric.Start()
	if c.fabric.NodeCount() == 0 {
		if _, err := c.fabric.SpawnNode(""); err != nil {
			c.mu.Lock()
			c.state = StateInitialized
			c.mu.Unlock()
			return fmt.Errorf("spawn initial node: %w", err)
		}
	}

	c.wg.Add(2)
	go c.dispatchLoop()
	go c.metricsLoop()
	log.Printf("Controller %s started with %d node(s)", c.id, c.fabric.NodeCount())
	return nil
}

// Stop halts both loops, stops the fabric, and fails whatever is still
// pending. Safe to call more than once; later callers block until the
// first stop completes.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.state = StateStopping
		c.mu.Unlock()
		log.Printf("Stopping controller %s", c.id)

		c.cancel()
		c.wg.Wait()
		c.fabric.Stop()
		c.failPending("controller stopped")

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		close(c.stopped)
		log.Printf("Controller %s stopped", c.id)
	})
	<-c.stopped
}

// Execute submits one task to the cluster and waits for its result. The
// returned TaskResult always carries a status from the closed result set;
// the error reports dispatch-level refusals (ErrNotRunning, ErrBusy,
// ErrNoNodes, ErrTaskTimeout, ErrDuplicateTask) and is nil when the task
// actually ran, even if its handler failed; that outcome lives in the
// result's status and error text.
func (c *Controller) Execute(ctx context.Context, task cluster.Task) (cluster.TaskResult, error) {
	start := time.Now()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		c.countError("not_running")
		res := cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusFailed, Error: ErrNotRunning.Error()}
		c.recordOutcome(res, start)
		return res, ErrNotRunning
	}
	if _, dup := c.pending[task.ID]; dup {
		c.mu.Unlock()
		c.countError("duplicate_task")
		res := cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusFailed, Error: ErrDuplicateTask.Error()}
		c.recordOutcome(res, start)
		return res, ErrDuplicateTask
	}
	ch := make(chan cluster.TaskResult, 1)
	c.pending[task.ID] = ch
	c.mu.Unlock()

	select {
	case c.queue <- task:
	default:
		c.dropPending(task.ID)
		c.countError("queue_full")
		res := cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusCapacityExceeded, Error: ErrBusy.Error()}
		c.recordOutcome(res, start)
		return res, ErrBusy
	}

	timer := time.NewTimer(c.cfg.ExecuteTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		c.recordOutcome(res, start)
		return res, statusErr(res)
	case <-timer.C:
		c.dropPending(task.ID)
		c.countError("timeout")
		log.Printf("Controller %s task %s timed out after %v", c.id, task.ID, c.cfg.ExecuteTimeout)
		res := cluster.TaskResult{
			TaskID:   task.ID,
			Status:   cluster.StatusTimeout,
			Error:    ErrTaskTimeout.Error(),
			Duration: time.Since(start),
		}
		c.recordOutcome(res, start)
		return res, ErrTaskTimeout
	case <-ctx.Done():
		c.dropPending(task.ID)
		c.countError("canceled")
		res := cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusFailed, Error: ctx.Err().Error()}
		c.recordOutcome(res, start)
		return res, ctx.Err()
	}
}

// statusErr maps refusal statuses to their sentinels.
func statusErr(res cluster.TaskResult) error {
	switch res.Status {
	case cluster.StatusNoNodes:
		return ErrNoNodes
	case cluster.StatusCapacityExceeded:
		return ErrBusy
	default:
		return nil
	}
}

// handleResult is the fabric's result sink: it hands node-produced
// results back to their waiting Execute calls.
func (c *Controller) handleResult(res cluster.TaskResult) {
	if res.Status == cluster.StatusFailed {
		c.countError("handler_error")
	}
	c.resolve(res)
}

// resolve delivers a result to its pending waiter. Results with no
// waiter arrived after a timeout or stop and are dropped.
func (c *Controller) resolve(res cluster.TaskResult) {
	c.mu.Lock()
	ch, ok := c.pending[res.TaskID]
	if ok {
		delete(c.pending, res.TaskID)
	}
	c.mu.Unlock()
	if !ok {
		log.Printf("Controller %s dropping unmatched result for task %s (%s)", c.id, res.TaskID, res.Status)
		return
	}
	ch <- res
}

// dropPending removes a waiter that gave up.
func (c *Controller) dropPending(taskID string) {
	c.mu.Lock()
	delete(c.pending, taskID)
	c.mu.Unlock()
}

// failPending resolves every outstanding waiter with a failed result.
func (c *Controller) failPending(reason string) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan cluster.TaskResult)
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- cluster.TaskResult{TaskID: id, Status: cluster.StatusFailed, Error: reason}
	}
}

// recordOutcome updates tallies and counters for one finished Execute.
func (c *Controller) recordOutcome(res cluster.TaskResult, start time.Time) {
	tasksTotal.WithLabelValues(c.id, string(res.Status)).Inc()
	c.mu.Lock()
	if res.Status == cluster.StatusProcessed {
		c.tasksProcessed++
	} else {
		c.tasksFailed++
	}
	c.mu.Unlock()
	if res.Status == cluster.StatusProcessed {
		latencySeconds.WithLabelValues(c.id).Observe(time.Since(start).Seconds())
	}
}

// countError bumps one internal error tally.
func (c *Controller) countError(kind string) {
	c.mu.Lock()
	c.errorsByKind[kind]++
	c.mu.Unlock()
	errorsTotal.WithLabelValues(c.id, kind).Inc()
}

// dispatchLoop moves queued tasks onto nodes.
func (c *Controller) dispatchLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.DispatchIdleInterval)
	defer ticker.Stop()
	log.Printf("Controller %s dispatch loop started", c.id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Controller %s dispatch loop stopping", c.id)
			return
		case task := <-c.queue:
			c.dispatch(task)
		case <-ticker.C:
			c.updateGauges()
		}
	}
}

// dispatch places one task on the least-loaded healthy node and runs the
// scaling check. A task that cannot be placed resolves with a typed
// refusal so its waiter never hangs.
func (c *Controller) dispatch(task cluster.Task) {
	target := c.selectNode()
	if target == nil {
		log.Printf("Controller %s has no available nodes for task %s", c.id, task.ID)
		c.countError("no_nodes")
		c.resolve(cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusNoNodes, Error: ErrNoNodes.Error()})
		return
	}

	if err := target.Submit(task); err != nil {
		log.Printf("Controller %s could not place task %s on node %s: %v", c.id, task.ID, target.ID(), err)
		if errors.Is(err, node.ErrQueueFull) {
			c.countError("queue_full")
			c.resolve(cluster.TaskResult{
				TaskID: task.ID,
				Status: cluster.StatusCapacityExceeded,
				Error:  fmt.Sprintf("queue full on node %s", target.ID()),
			})
		} else {
			c.countError("no_nodes")
			c.resolve(cluster.TaskResult{TaskID: task.ID, Status: cluster.StatusNoNodes, Error: err.Error()})
		}
	}

	if c.cfg.AutoScale {
		c.checkScaling()
	}
}

// selectNode returns the healthy node with the shortest queue, or nil.
func (c *Controller) selectNode() *node.Node {
	var best *node.Node
	bestLen := 0
	for _, n := range c.fabric.Nodes() {
		if n.State() != node.StateHealthy {
			continue
		}
		l := n.QueueLen()
		if best == nil || l < bestLen {
			best, bestLen = n, l
		}
	}
	return best
}

// checkScaling grows the fabric above the scale-up threshold and shrinks
// it below the scale-down threshold, never under one node.
func (c *Controller) checkScaling() {
	nodes := c.fabric.Nodes()
	if len(nodes) == 0 {
		return
	}
	total := 0
	for _, n := range nodes {
		total += n.QueueLen()
	}
	avg := float64(total) / float64(len(nodes))

	switch {
	case avg > float64(c.cfg.ScaleUpThreshold):
		c.scaleUp(avg)
	case avg < float64(c.cfg.ScaleDownThreshold) && len(nodes) > 1:
		c.scaleDown(avg, nodes)
	}
}

func (c *Controller) scaleUp(avg float64) {
	if _, err := c.fabric.SpawnNode(""); err != nil {
		if !errors.Is(err, fabric.ErrCapacityExceeded) {
			log.Printf("Controller %s scale-up failed: %v", c.id, err)
		}
		return
	}
	log.Printf("Controller %s scaled up to %d nodes (avg queue %.1f)", c.id, c.fabric.NodeCount(), avg)
}

func (c *Controller) scaleDown(avg float64, nodes []*node.Node) {
	var idle *node.Node
	idleLen := 0
	for _, n := range nodes {
		l := n.QueueLen()
		if idle == nil || l < idleLen {
			idle, idleLen = n, l
		}
	}
	if idle == nil {
		return
	}
	if err := c.fabric.RemoveNode(idle.ID()); err != nil {
		log.Printf("Controller %s scale-down failed: %v", c.id, err)
		return
	}
	log.Printf("Controller %s scaled down to %d nodes (avg queue %.1f)", c.id, c.fabric.NodeCount(), avg)
}

// metricsLoop refreshes gauges and logs a periodic one-line summary.
func (c *Controller) metricsLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.updateGauges()
			c.mu.Lock()
			processed, failed := c.tasksProcessed, c.tasksFailed
			c.mu.Unlock()
			log.Printf("Controller %s: %d node(s), %d queued, %d processed, %d failed",
				c.id, c.fabric.NodeCount(), len(c.queue), processed, failed)
		}
	}
}

func (c *Controller) updateGauges() {
	activeNodes.WithLabelValues(c.id).Set(float64(c.fabric.NodeCount()))
	queueDepth.WithLabelValues(c.id).Set(float64(len(c.queue)))
}

// GetStatus reports the controller, its tallies, and every node.
func (c *Controller) GetStatus() Status {
	nodes := c.fabric.Nodes()
	st := Status{
		ControllerID:  c.id,
		NodeCount:     len(nodes),
		MaxNodes:      c.fabric.MaxNodes(),
		QueueSize:     len(c.queue),
		Nodes:         make([]node.Status, 0, len(nodes)),
		UptimeSeconds: time.Since(c.createdAt).Seconds(),
	}
	for _, n := range nodes {
		st.Nodes = append(st.Nodes, n.Status())
	}
	c.mu.Lock()
	st.State = c.state
	st.TasksProcessed = c.tasksProcessed
	st.TasksFailed = c.tasksFailed
	c.mu.Unlock()
	return st
}

// HealthCheck reports whether the controller can currently serve tasks:
// it must be running with at least one healthy node.
func (c *Controller) HealthCheck() Health {
	nodes := c.fabric.Nodes()
	healthy := 0
	for _, n := range nodes {
		if n.State() == node.StateHealthy {
			healthy++
		}
	}
	state := c.State()
	return Health{
		Healthy:      state == StateRunning && len(nodes) > 0 && healthy > 0,
		State:        state,
		NodesTotal:   len(nodes),
		NodesHealthy: healthy,
		TasksQueued:  len(c.queue),
	}
}

// ErrorsByKind returns a snapshot of the internal error tallies.
func (c *Controller) ErrorsByKind() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		out[k] = v
	}
	return out
}
