package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/swarm/internal/cluster"
)

// Config carries the router tunables.
type Config struct {
	// GossipInterval is the period between gossip broadcasts.
	GossipInterval time.Duration
	// CleanupInterval is the period between eviction sweeps.
	CleanupInterval time.Duration
	// PeerLivenessTimeout bounds how long a silent peer counts as alive.
	PeerLivenessTimeout time.Duration
	// RouteTTL bounds how long a route survives without being re-learned.
	RouteTTL time.Duration
	// MaxPeers bounds the peer directory.
	MaxPeers int
	// RouteTTLHops is the hop budget stamped on new routes and carried in
	// gossip digests.
	RouteTTLHops int
}

// DefaultConfig returns the stock mesh tuning.
func DefaultConfig() Config {
	return Config{
		GossipInterval:      5 * time.Second,
		CleanupInterval:     10 * time.Second,
		PeerLivenessTimeout: 30 * time.Second,
		RouteTTL:            60 * time.Second,
		MaxPeers:            50,
		RouteTTLHops:        10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GossipInterval <= 0 {
		c.GossipInterval = d.GossipInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.PeerLivenessTimeout <= 0 {
		c.PeerLivenessTimeout = d.PeerLivenessTimeout
	}
	if c.RouteTTL <= 0 {
		c.RouteTTL = d.RouteTTL
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.RouteTTLHops <= 0 {
		c.RouteTTLHops = d.RouteTTLHops
	}
	return c
}

// TopologyPeer is one peer row in a topology snapshot.
type TopologyPeer struct {
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	HealthScore float64   `json:"health_score"`
	LastSeen    time.Time `json:"last_seen"`
}

// TopologyRoute is one routing table row in a topology snapshot.
type TopologyRoute struct {
	NextHop string `json:"next_hop"`
	Cost    int    `json:"cost"`
	TTL     int    `json:"ttl"`
}

// Topology is a point-in-time view of the router's mesh.
type Topology struct {
	RouterID string                   `json:"node_id"`
	Peers    map[string]TopologyPeer  `json:"peers"`
	Routes   map[string]TopologyRoute `json:"routes"`
}

// Router maintains a bounded peer directory and a best-route table, and
// moves envelopes between nodes through an injected transport. Background
// gossip spreads its view; background cleanup evicts silent peers and
// expired routes.
type Router struct {
	id        string
	cfg       Config
	transport Transport

	mu     sync.RWMutex
	peers  map[string]*PeerInfo
	routes map[string]*RouteEntry

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRouter creates a router for the given node id. A nil transport
// defaults to NopTransport.
func NewRouter(id string, cfg Config, transport Transport) *Router {
	if transport == nil {
		transport = NopTransport{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		id:        id,
		cfg:       cfg.withDefaults(),
		transport: transport,
		peers:     make(map[string]*PeerInfo),
		routes:    make(map[string]*RouteEntry),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	log.Printf("Router %s initialized (max_peers=%d)", id, r.cfg.MaxPeers)
	return r
}

// ID returns the router's node id.
func (r *Router) ID() string { return r.id }

// Start launches the gossip and cleanup loops. Repeat calls are no-ops.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.ctx.Err() != nil {
		log.Printf("Router %s already started or stopped", r.id)
		return
	}
	r.started = true
	r.wg.Add(2)
	go r.gossipLoop()
	go r.cleanupLoop()
	log.Printf("Router %s started", r.id)
}

// Stop cancels both loops and waits for them to exit. Safe to call more
// than once; later callers block until the first stop completes.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		close(r.stopped)
		log.Printf("Router %s stopped", r.id)
	})
	<-r.stopped
}

// RegisterPeer adds a peer to the directory and installs the direct route
// to it. Self-registration and registration past MaxPeers are rejected.
func (r *Router) RegisterPeer(id, addr string, port int, metadata map[string]string) bool {
	if id == r.id {
		log.Printf("Router %s ignoring attempt to register itself as a peer", r.id)
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) >= r.cfg.MaxPeers {
		log.Printf("Router %s peer directory full (%d), rejecting %s", r.id, r.cfg.MaxPeers, id)
		return false
	}
	r.peers[id] = &PeerInfo{
		NodeID:      id,
		Address:     addr,
		Port:        port,
		LastSeen:    time.Now(),
		HealthScore: 1.0,
		Metadata:    metadata,
	}
	r.routes[id] = &RouteEntry{
		Destination: id,
		NextHop:     id,
		Cost:        1,
		TTL:         r.cfg.RouteTTLHops,
		UpdatedAt:   time.Now(),
	}
	r.updateGaugesLocked()
	log.Printf("Router %s registered peer %s (%s:%d)", r.id, id, addr, port)
	return true
}

// UnregisterPeer removes a peer and every route that forwards through it,
// so no dangling next-hops survive.
func (r *Router) UnregisterPeer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	r.dropRoutesViaLocked(id)
	r.updateGaugesLocked()
	log.Printf("Router %s unregistered peer %s", r.id, id)
	return true
}

// Send delivers one envelope toward dest through the routing table. It
// reports success; a missing route, a stale next hop, or a transport
// failure all report false. Each attempt that reaches the transport
// adjusts the next hop's health score.
func (r *Router) Send(ctx context.Context, dest string, env cluster.Envelope) bool {
	start := time.Now()

	r.mu.RLock()
	route, ok := r.routes[dest]
	var nextHop string
	var peer PeerInfo
	peerOK := false
	if ok {
		nextHop = route.NextHop
		if p, exists := r.peers[nextHop]; exists {
			peer = p.clone()
			peerOK = true
		}
	}
	r.mu.RUnlock()

	if !ok {
		routeMisses.WithLabelValues(r.id).Inc()
		log.Printf("Router %s has no route to %s", r.id, dest)
		return false
	}
	if !peerOK || !peer.Alive(r.cfg.PeerLivenessTimeout) {
		log.Printf("Router %s next hop %s unavailable for %s", r.id, nextHop, dest)
		r.removeStaleRoutes()
		return false
	}

	err := r.transport.Deliver(ctx, peer.Address, peer.Port, env)
	r.recordSendOutcome(nextHop, err == nil)
	if err != nil {
		log.Printf("Router %s send to %s via %s failed: %v", r.id, dest, nextHop, err)
		return false
	}

	messagesTotal.WithLabelValues(r.id, string(env.Type)).Inc()
	sendLatency.WithLabelValues(r.id, dest).Observe(time.Since(start).Seconds())
	return true
}

// Broadcast fans the envelope out to every registered peer concurrently
// and returns the number of successful sends.
func (r *Router) Broadcast(ctx context.Context, env cluster.Envelope) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var successes int64
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(peerID string) {
			defer wg.Done()
			if r.Send(ctx, peerID, env) {
				atomic.AddInt64(&successes, 1)
			}
		}(id)
	}
	wg.Wait()
	return int(atomic.LoadInt64(&successes))
}

// Ingest applies one received envelope to the router's state. Gossip
// envelopes update the peer directory and routing table; other types are
// the application's concern and pass through untouched.
func (r *Router) Ingest(env cluster.Envelope) error {
	if env.Type != cluster.MessageGossip {
		return nil
	}
	var payload cluster.GossipPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode gossip from %s: %w", env.Origin, err)
	}
	r.HandleGossip(env.Origin, payload)
	return nil
}

// HandleGossip ingests one gossip digest: the sender's liveness stamp is
// refreshed and each advertised route is offered to the update rule at
// cost+1 through the sender. Digests from unregistered senders are ignored
// because the router could not forward through them anyway.
func (r *Router) HandleGossip(from string, g cluster.GossipPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sender, ok := r.peers[from]
	if !ok {
		return
	}
	sender.LastSeen = time.Now()

	for _, digest := range g.Routes {
		if digest.Destination == r.id {
			continue
		}
		r.updateRouteLocked(digest.Destination, from, digest.Cost+1)
	}
	r.updateGaugesLocked()
}

// Peers returns a snapshot of the peer directory.
func (r *Router) Peers() map[string]PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]PeerInfo, len(r.peers))
	for id, p := range r.peers {
		out[id] = p.clone()
	}
	return out
}

// Routes returns a snapshot of the routing table.
func (r *Router) Routes() map[string]RouteEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RouteEntry, len(r.routes))
	for dest, rt := range r.routes {
		out[dest] = *rt
	}
	return out
}

// PeerCount returns the number of registered peers.
func (r *Router) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// RouteCount returns the number of routing table entries.
func (r *Router) RouteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Topology returns the mesh as seen by this router.
func (r *Router) Topology() Topology {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topo := Topology{
		RouterID: r.id,
		Peers:    make(map[string]TopologyPeer, len(r.peers)),
		Routes:   make(map[string]TopologyRoute, len(r.routes)),
	}
	for id, p := range r.peers {
		topo.Peers[id] = TopologyPeer{
			Address:     p.Address,
			Port:        p.Port,
			HealthScore: p.HealthScore,
			LastSeen:    p.LastSeen,
		}
	}
	for dest, rt := range r.routes {
		topo.Routes[dest] = TopologyRoute{
			NextHop: rt.NextHop,
			Cost:    rt.Cost,
			TTL:     rt.TTL,
		}
	}
	return topo
}

// gossipLoop broadcasts this router's view on every tick.
func (r *Router) gossipLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.GossipInterval)
	defer ticker.Stop()
	log.Printf("Router %s gossip loop started (interval %v)", r.id, r.cfg.GossipInterval)

	for {
		select {
		case <-r.ctx.Done():
			log.Printf("Router %s gossip loop stopping", r.id)
			return
		case <-ticker.C:
			r.gossipOnce()
		}
	}
}

// gossipOnce snapshots the mesh view and broadcasts it.
func (r *Router) gossipOnce() {
	r.mu.RLock()
	payload := cluster.GossipPayload{
		Peers:  make([]string, 0, len(r.peers)),
		Routes: make([]cluster.RouteDigest, 0, len(r.routes)),
	}
	for id := range r.peers {
		payload.Peers = append(payload.Peers, id)
	}
	for dest, rt := range r.routes {
		payload.Routes = append(payload.Routes, cluster.RouteDigest{
			Destination: dest,
			Cost:        rt.Cost,
			TTL:         rt.TTL,
		})
	}
	r.mu.RUnlock()

	env, err := cluster.NewGossipEnvelope(r.id, payload)
	if err != nil {
		log.Printf("Router %s could not build gossip envelope: %v", r.id, err)
		return
	}
	r.Broadcast(r.ctx, env)
}

// cleanupLoop evicts dead peers and expired routes on every tick.
func (r *Router) cleanupLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	log.Printf("Router %s cleanup loop started (interval %v)", r.id, r.cfg.CleanupInterval)

	for {
		select {
		case <-r.ctx.Done():
			log.Printf("Router %s cleanup loop stopping", r.id)
			return
		case <-ticker.C:
			r.cleanupOnce()
		}
	}
}

// cleanupOnce removes peers past the liveness timeout (with their routes)
// and routes past the TTL window. Route expiry is deliberately independent
// of peer liveness so stale forwarding state cannot loop forever.
func (r *Router) cleanupOnce() {
	now := time.Now()
	r.mu.Lock()
	var deadPeers []string
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > r.cfg.PeerLivenessTimeout {
			deadPeers = append(deadPeers, id)
		}
	}
	for _, id := range deadPeers {
		delete(r.peers, id)
		r.dropRoutesViaLocked(id)
	}

	var expired []string
	for dest, rt := range r.routes {
		if now.Sub(rt.UpdatedAt) > r.cfg.RouteTTL {
			expired = append(expired, dest)
		}
	}
	for _, dest := range expired {
		delete(r.routes, dest)
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	if len(deadPeers) > 0 || len(expired) > 0 {
		log.Printf("Router %s evicted %d dead peers and %d expired routes",
			r.id, len(deadPeers), len(expired))
	}
}

// removeStaleRoutes drops routes whose next hop is missing or no longer
// alive.
func (r *Router) removeStaleRoutes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for dest, rt := range r.routes {
		p, ok := r.peers[rt.NextHop]
		if !ok || !p.Alive(r.cfg.PeerLivenessTimeout) {
			delete(r.routes, dest)
		}
	}
	r.updateGaugesLocked()
}

// updateRouteLocked applies the routing update rule: install only when the
// destination is unknown or the offered cost is strictly lower than the
// current one. Callers hold r.mu.
func (r *Router) updateRouteLocked(dest, nextHop string, cost int) {
	existing, ok := r.routes[dest]
	if ok && existing.Cost <= cost {
		return
	}
	r.routes[dest] = &RouteEntry{
		Destination: dest,
		NextHop:     nextHop,
		Cost:        cost,
		TTL:         r.cfg.RouteTTLHops,
		UpdatedAt:   time.Now(),
	}
}

// recordSendOutcome adjusts the peer's health for one delivery attempt.
func (r *Router) recordSendOutcome(peerID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		p.recordOutcome(success)
	}
}

// dropRoutesViaLocked removes every route that forwards through the given
// peer. Callers hold r.mu.
func (r *Router) dropRoutesViaLocked(nextHop string) {
	for dest, rt := range r.routes {
		if rt.NextHop == nextHop {
			delete(r.routes, dest)
		}
	}
}

// updateGaugesLocked refreshes the peer and route gauges. Callers hold r.mu.
func (r *Router) updateGaugesLocked() {
	peersGauge.WithLabelValues(r.id).Set(float64(len(r.peers)))
	routesGauge.WithLabelValues(r.id).Set(float64(len(r.routes)))
}
