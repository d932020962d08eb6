package mesh

import (
	"math"
	"time"
)

// Health score adjustments applied per send outcome.
const (
	healthReward  = 0.1
	healthPenalty = 0.2
)

// PeerInfo describes one known peer in the mesh. A peer record is created
// by RegisterPeer and mutated only by send outcomes and gossip ingestion.
type PeerInfo struct {
	NodeID      string            `json:"node_id"`
	Address     string            `json:"address"`
	Port        int               `json:"port"`
	LastSeen    time.Time         `json:"last_seen"`
	HealthScore float64           `json:"health_score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Alive reports whether the peer was seen within the liveness timeout.
func (p *PeerInfo) Alive(timeout time.Duration) bool {
	return time.Since(p.LastSeen) < timeout
}

// recordOutcome adjusts the health score for one send outcome and refreshes
// the liveness stamp. Scores stay within [0, 1].
func (p *PeerInfo) recordOutcome(success bool) {
	if success {
		p.HealthScore = math.Min(1.0, p.HealthScore+healthReward)
	} else {
		p.HealthScore = math.Max(0.0, p.HealthScore-healthPenalty)
	}
	p.LastSeen = time.Now()
}

// clone returns a copy safe to hand out without the router lock.
func (p *PeerInfo) clone() PeerInfo {
	out := *p
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// RouteEntry is one row of the routing table: to reach Destination, forward
// to NextHop at the given cost. Entries are replaced only by strictly
// cheaper offers and expire RouteTTL after their last update.
type RouteEntry struct {
	Destination string    `json:"destination"`
	NextHop     string    `json:"next_hop"`
	Cost        int       `json:"cost"`
	TTL         int       `json:"ttl"`
	UpdatedAt   time.Time `json:"updated_at"`
}
