package fabric

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/mesh"
	"github.com/dreamware/swarm/internal/node"
)

var (
	// ErrCapacityExceeded is returned when the fabric is already at its
	// node ceiling.
	ErrCapacityExceeded = errors.New("fabric at node capacity")

	// ErrNodeNotFound is returned when an operation names a node the
	// fabric does not track.
	ErrNodeNotFound = errors.New("node not found in fabric")

	// ErrStopped is returned when a stopped fabric is asked to grow.
	ErrStopped = errors.New("fabric stopped")
)

// Config tunes a fabric and the nodes and mesh it builds.
type Config struct {
	// ID names the fabric. Its router is named "<ID>_router".
	ID string

	// MaxNodes caps the live node set, counting adopted children.
	MaxNodes int

	// HealInterval is how often the healing loop reaps terminated nodes.
	HealInterval time.Duration

	// Node is the template applied to every node this fabric creates.
	Node node.Config

	// Mesh tunes the fabric's router.
	Mesh mesh.Config
}

// DefaultConfig returns the standard fabric tuning.
func DefaultConfig() Config {
	return Config{
		ID:           "default",
		MaxNodes:     10,
		HealInterval: 10 * time.Second,
		Node:         node.DefaultConfig(),
		Mesh:         mesh.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.HealInterval <= 0 {
		c.HealInterval = d.HealInterval
	}
	return c
}

// Status is a point-in-time view of the fabric and its mesh.
type Status struct {
	FabricID  string        `json:"fabric_id"`
	NodeCount int           `json:"nodes_count"`
	MaxNodes  int           `json:"max_nodes"`
	Nodes     []node.Status `json:"nodes"`
	Topology  mesh.Topology `json:"mesh_topology"`
}

// Fabric owns the live node set and its mesh router. Every node the
// fabric creates or adopts is registered as a mesh peer for its lifetime;
// the healing loop reaps nodes that reach the terminated state.
type Fabric struct {
	id       string
	cfg      Config
	registry *cluster.HandlerRegistry
	sink     node.ResultSink
	router   *mesh.Router

	mu    sync.Mutex
	nodes []*node.Node

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a fabric. Tasks processed by its nodes resolve through the
// given handler registry and report through sink; the router moves mesh
// traffic through transport (nil means NopTransport).
func New(cfg Config, registry *cluster.HandlerRegistry, sink node.ResultSink, transport mesh.Transport) *Fabric {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	f := &Fabric{
		id:       cfg.ID,
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		router:   mesh.NewRouter(fmt.Sprintf("%s_router", cfg.ID), cfg.Mesh, transport),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	log.Printf("Fabric %s initialized (max_nodes=%d)", cfg.ID, cfg.MaxNodes)
	return f
}

// ID returns the fabric's id.
func (f *Fabric) ID() string { return f.id }

// MaxNodes returns the fabric's node ceiling.
func (f *Fabric) MaxNodes() int { return f.cfg.MaxNodes }

// Router returns the fabric's mesh router.
func (f *Fabric) Router() *mesh.Router { return f.router }

// Start launches the router and the healing loop. Repeat calls are no-ops.
func (f *Fabric) Start() {
	f.mu.Lock()
	if f.started || f.ctx.Err() != nil {
		f.mu.Unlock()
		log.Printf("Fabric %s already started or stopped", f.id)
		return
	}
	f.started = true
	f.mu.Unlock()

	f.router.Start()
	f.wg.Add(1)
	go f.healingLoop()
	log.Printf("Fabric %s started", f.id)
}

// Stop halts the healing loop, stops the router, and stops every node.
// Safe to call more than once; later callers block until the first stop
// completes.
func (f *Fabric) Stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		f.wg.Wait()
		f.router.Stop()

		f.mu.Lock()
		nodes := slices.Clone(f.nodes)
		f.mu.Unlock()
		for _, n := range nodes {
			n.Stop()
		}
		close(f.stopped)
		log.Printf("Fabric %s stopped", f.id)
	})
	<-f.stopped
}

// SpawnNode creates and starts one node, registers it as a mesh peer, and
// adds it to the live set. parentID may be empty for a root node.
func (f *Fabric) SpawnNode(parentID string) (*node.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return nil, ErrStopped
	}
	if len(f.nodes) >= f.cfg.MaxNodes {
		return nil, fmt.Errorf("%w: limit %d reached", ErrCapacityExceeded, f.cfg.MaxNodes)
	}

	n := node.New("", parentID, f.cfg.Node, f.registry, f.sink)
	n.SetAdopter(f.adoptChild)
	n.Start()
	f.nodes = append(f.nodes, n)
	f.router.RegisterPeer(n.ID(), "localhost", 0, nil)

	spawnEvents.WithLabelValues(f.id).Inc()
	nodesGauge.WithLabelValues(f.id).Set(float64(len(f.nodes)))
	log.Printf("Node %s spawned in fabric %s", n.ID(), f.id)
	return n, nil
}

// adoptChild admits a node-spawned child into the fabric: the same
// ceiling applies, and on admission the fabric starts the child and
// registers it as a peer. The child already carries this adopter, so
// grandchildren route through the fabric too.
func (f *Fabric) adoptChild(child *node.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return ErrStopped
	}
	if len(f.nodes) >= f.cfg.MaxNodes {
		return fmt.Errorf("%w: limit %d reached", ErrCapacityExceeded, f.cfg.MaxNodes)
	}

	child.Start()
	f.nodes = append(f.nodes, child)
	f.router.RegisterPeer(child.ID(), "localhost", 0, nil)

	spawnEvents.WithLabelValues(f.id).Inc()
	nodesGauge.WithLabelValues(f.id).Set(float64(len(f.nodes)))
	log.Printf("Fabric %s adopted child node %s (parent %s)", f.id, child.ID(), child.ParentID())
	return nil
}

// RemoveNode takes the node out of the live set, unregisters its peer
// entry, and stops it. The set mutation happens under the fabric lock;
// the stop itself drains outside it so a slow handler cannot block
// spawns.
func (f *Fabric) RemoveNode(id string) error {
	f.mu.Lock()
	idx := slices.IndexFunc(f.nodes, func(n *node.Node) bool { return n.ID() == id })
	if idx < 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n := f.nodes[idx]
	f.nodes = slices.Delete(f.nodes, idx, idx+1)
	f.router.UnregisterPeer(id)
	nodesGauge.WithLabelValues(f.id).Set(float64(len(f.nodes)))
	f.mu.Unlock()

	n.Stop()
	log.Printf("Node %s removed from fabric %s", id, f.id)
	return nil
}

// Nodes returns a snapshot of the live node set.
func (f *Fabric) Nodes() []*node.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.nodes)
}

// NodeCount returns the size of the live node set.
func (f *Fabric) NodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes)
}

// Status reports the fabric, every node's status, and the mesh topology.
func (f *Fabric) Status() Status {
	nodes := f.Nodes()
	st := Status{
		FabricID:  f.id,
		NodeCount: len(nodes),
		MaxNodes:  f.cfg.MaxNodes,
		Nodes:     make([]node.Status, 0, len(nodes)),
		Topology:  f.router.Topology(),
	}
	for _, n := range nodes {
		st.Nodes = append(st.Nodes, n.Status())
	}
	return st
}

// healingLoop reaps terminated nodes on every tick.
func (f *Fabric) healingLoop() {
	defer f.wg.Done()
	ticker := time.NewTicker(f.cfg.HealInterval)
	defer ticker.Stop()
	log.Printf("Fabric %s healing loop started (interval %v)", f.id, f.cfg.HealInterval)

	for {
		select {
		case <-f.ctx.Done():
			log.Printf("Fabric %s healing loop stopping", f.id)
			return
		case <-ticker.C:
			f.healOnce()
		}
	}
}

// healOnce removes every node that has reached the terminated state.
func (f *Fabric) healOnce() {
	f.mu.Lock()
	var dead []string
	for _, n := range f.nodes {
		if n.State() == node.StateTerminated {
			dead = append(dead, n.ID())
		}
	}
	f.mu.Unlock()

	for _, id := range dead {
		log.Printf("Fabric %s healing dead node %s", f.id, id)
		if err := f.RemoveNode(id); err == nil {
			healingEvents.WithLabelValues(f.id).Inc()
		}
	}
}
