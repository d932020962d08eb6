// Package mesh implements peer tracking and best-route selection between
// swarm nodes: a bounded peer directory with health scoring, a
// distance-vector routing table, periodic gossip, and TTL-driven cleanup.
//
// # Overview
//
// Every node in the fabric is represented to its siblings through a Router.
// The router knows two things: who its peers are (directory) and how to
// reach any destination (routing table). Both structures are bounded and
// self-cleaning, so a router abandoned by its peers converges back to an
// empty view instead of accumulating garbage.
//
// # Architecture
//
//	┌────────────────────────────────────────────┐
//	│                  ROUTER                    │
//	├────────────────────────────────────────────┤
//	│                                            │
//	│  Peer Directory          Routing Table     │
//	│  ┌──────────────┐        ┌──────────────┐  │
//	│  │ id → PeerInfo │        │ dest → entry │  │
//	│  │  health 0..1  │        │  next_hop    │  │
//	│  │  last_seen    │        │  cost, ttl   │  │
//	│  └──────┬───────┘        └──────┬───────┘  │
//	│         │                       │          │
//	│    ┌────▼───────────────────────▼────┐     │
//	│    │     gossip loop / cleanup loop   │     │
//	│    └────────────┬───────────────────┘     │
//	│                 │                          │
//	│          ┌──────▼──────┐                   │
//	│          │  Transport  │ (injected)        │
//	│          └─────────────┘                   │
//	└────────────────────────────────────────────┘
//
// # Routing Update Rule
//
// The table accepts a learned route only when the destination is unknown
// or the offered cost is strictly lower than the current entry's:
//
//	direct registration:  dest = peer, next_hop = peer, cost = 1
//	gossip ingestion:     advertised cost + 1, next_hop = sender
//
// Ties never replace an installed route, so the table stays stable under
// repeated gossip. Route entries also expire RouteTTL after their last
// update regardless of peer liveness; expiry is the safety net that keeps
// stale forwarding state from circulating forever.
//
// # Health Scoring
//
// Peers start at a health score of 1.0. Every send outcome through a peer
// adjusts it: +0.1 on success (capped at 1.0), -0.2 on failure (floored at
// 0.0), and either outcome refreshes the peer's liveness stamp. Scores are
// a selection bias signal for callers; the router itself only requires a
// next hop to be within the liveness window.
//
// # Background Loops
//
// Start launches two goroutines sharing the router's context:
//
//   - gossip: every GossipInterval, broadcast the peer-id list and route
//     digests to all peers
//   - cleanup: every CleanupInterval, evict peers silent past
//     PeerLivenessTimeout (cascading their routes) and routes older than
//     RouteTTL
//
// Stop cancels the context and blocks until both loops exit.
//
// # Transports
//
// The router never dials anything. Deliveries go through the injected
// Transport; NopTransport serves single-process fabrics, HTTPTransport
// posts envelopes to peer ingest endpoints, and tests use TransportFunc
// closures. The receive side is Ingest, which deployments wire to whatever
// listener their transport implies.
package mesh
