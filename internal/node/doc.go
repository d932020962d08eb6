// Package node implements the autonomous worker unit of the swarm: a
// bounded FIFO task queue, a single processing goroutine, failure-driven
// degradation, and elastic child spawning under sustained overload.
//
// # Overview
//
// A Node is the smallest schedulable unit in the fabric. It owns exactly one
// task queue and processes tasks strictly in arrival order, one at a time.
// Nodes are cheap: spawning one allocates a channel and a goroutine, so the
// fleet can grow and shrink with load.
//
// # Lifecycle
//
// Nodes move through a small state machine:
//
//	             ┌──────────────┐
//	             │ INITIALIZING │
//	             └──────┬───────┘
//	                    │ Start()
//	             ┌──────▼───────┐   overload    ┌──────────┐
//	             │   HEALTHY    ├──────────────►│ SPAWNING │
//	             │              │◄──────────────┤          │
//	             └──────┬───────┘  child ready  └──────────┘
//	                    │
//	       failures exceed threshold
//	                    │
//	             ┌──────▼───────┐
//	             │   DEGRADED   │
//	             └──────────────┘
//
//	 Stop() moves any state to TERMINATED; there is no edge out of it.
//
// INITIALIZING is the post-construction state; Start moves the node to
// HEALTHY and launches the worker. SPAWNING is a transient state held while
// a child is created. DEGRADED is entered when the degrade rule fires and
// is never left automatically: escalation is the fabric operator's concern.
// TERMINATED is terminal and cascades to every child the node spawned.
//
// # Task Processing
//
// Submit enqueues without ever blocking: a full queue is an immediate
// ErrQueueFull, never a silent drop. The worker pulls one envelope at a
// time, resolves the handler through the closed registry, and converts both
// handler errors and panics into failed results. Each task's terminal
// result is pushed through the node's ResultSink, so ownership of result
// correlation stays with the caller that wired the fleet together.
//
// When the queue stays empty for an idle interval the worker runs a health
// check instead: uptime bookkeeping plus the degrade rule (more failures
// than the threshold while completions stay under the floor).
//
// # Elastic Spawning
//
// After every successful enqueue the node evaluates its queue load. Above
// the spawn threshold a HEALTHY node with spare child slots spawns a child
// sharing its configuration, registry, and sink. When an AdoptFunc is
// installed the child is admitted into cluster ownership before the parent
// records it; the adopter may refuse (for example at the fleet ceiling), in
// which case the child never runs.
//
// # Concurrency Model
//
// One goroutine owns task processing; all shared state is guarded by a
// single RWMutex and exported accessors return copies. Stop cancels the
// worker context, waits for the loop to exit, then cascades to children;
// it is safe to call repeatedly from multiple goroutines.
//
// # See Also
//
// Related packages:
//   - internal/cluster: task, result, and registry types
//   - internal/fabric: node set ownership, healing, and adoption
package node
