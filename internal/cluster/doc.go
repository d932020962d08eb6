// Package cluster defines the shared domain types for the swarm: tasks and
// their terminal results, the closed handler dispatch table, and the wire
// envelopes routers exchange over an injected transport.
//
// # Overview
//
// Every other package speaks in this package's vocabulary. A Task enters
// through the controller, is queued on a worker node, and resolves to exactly
// one TaskResult whose status comes from a closed set. Mesh routers exchange
// Envelope values whose payloads are opaque JSON; the only payload this
// package interprets is the gossip digest.
//
// # Task Dispatch
//
// Dispatch is closed over TaskKind. Handlers are registered once, at
// composition time, in a HandlerRegistry:
//
//	registry := cluster.NewHandlerRegistry()
//	registry.Register("echo", func(ctx context.Context, t cluster.Task) (json.RawMessage, error) {
//	    return t.Payload, nil
//	})
//
// A task naming an unregistered kind fails with ErrNoHandler; there is no
// fallback by name. This keeps the set of behaviors a node can perform
// enumerable at startup.
//
// # Result Statuses
//
// The TaskStatus set is closed and every submitted task resolves to exactly
// one member:
//
//	processed           handler completed, payload attached
//	failed              handler returned an error or panicked
//	timeout             no result within the execution deadline
//	no-nodes            no healthy node available at dispatch
//	capacity-exceeded   refused at a queue or fleet ceiling
//
// # Wire Protocol
//
// Routers communicate via JSON envelopes. The transport is injected, so this
// package only fixes the shapes:
//
//	Envelope{Type, Origin, Payload, Timestamp}
//	GossipPayload{Peers, Routes}
//
// PostJSON and GetJSON are the shared HTTP helpers used by the HTTP
// transport and the daemon; both carry a 5 second client timeout.
//
// # Concurrency Model
//
// HandlerRegistry is safe for concurrent use. Task, TaskResult, and Envelope
// are plain values; callers copy them freely and never share mutable state
// through them.
//
// # See Also
//
// Related packages:
//   - internal/node: worker nodes that execute tasks
//   - internal/mesh: peer directory and routing between nodes
//   - internal/fabric: node lifecycle and healing
//   - internal/controller: task execution front door and autoscaling
package cluster
