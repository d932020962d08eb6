package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MessageType tags envelopes exchanged between mesh routers.
type MessageType string

const (
	// MessageGossip carries a GossipPayload with the sender's mesh view.
	MessageGossip MessageType = "gossip"
	// MessageData carries an application payload between routers.
	MessageData MessageType = "data"
)

// Envelope is the unit a transport delivers between routers.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RouteDigest summarizes one routing table entry for gossip exchange.
type RouteDigest struct {
	Destination string `json:"dest"`
	Cost        int    `json:"cost"`
	TTL         int    `json:"ttl"`
}

// GossipPayload is the body of a MessageGossip envelope: the sender's known
// peer ids and a digest of its routing table.
type GossipPayload struct {
	Peers  []string      `json:"peers"`
	Routes []RouteDigest `json:"routes"`
}

// NewGossipEnvelope wraps a gossip payload in a sealed envelope.
func NewGossipEnvelope(origin string, g GossipPayload) (Envelope, error) {
	body, err := json.Marshal(g)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      MessageGossip,
		Origin:    origin,
		Payload:   body,
		Timestamp: time.Now(),
	}, nil
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body as JSON to url and decodes the response into out when
// out is non-nil.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
