package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/controller"
	"github.com/dreamware/swarm/internal/fabric"
	"github.com/dreamware/swarm/internal/mesh"
	"github.com/dreamware/swarm/internal/node"
)

// TestSystem wraps one swarmd daemon under test
type TestSystem struct {
	t          *testing.T
	daemon     *exec.Cmd
	baseURL    string
	httpClient *http.Client
}

// NewTestSystem creates a harness around a daemon on a high port
func NewTestSystem(t *testing.T) *TestSystem {
	return &TestSystem{
		t:       t,
		baseURL: "http://127.0.0.1:18400", // Use a high port to avoid conflicts
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start launches the daemon with aggressive scaling tunables and waits
// until its health endpoint answers
func (ts *TestSystem) Start() error {
	ts.t.Log("Starting swarmd...")
	ts.daemon = exec.Command("./bin/swarmd", "serve")
	ts.daemon.Env = append(os.Environ(),
		"SWARM_SERVER_LISTEN=:18400",
		"SWARM_FABRIC_MAX_NODES=5",
		"SWARM_FABRIC_HEAL_INTERVAL_SECONDS=1",
		"SWARM_CONTROLLER_SCALE_UP_THRESHOLD=2",
		"SWARM_CONTROLLER_SCALE_DOWN_THRESHOLD=1",
		"SWARM_NODE_MAX_QUEUE_SIZE=8",
		"SWARM_NODE_MAX_CHILDREN=0",
		"SWARM_MESH_GOSSIP_INTERVAL_SECONDS=1",
	)
	ts.daemon.Stdout = os.Stdout
	ts.daemon.Stderr = os.Stderr
	if err := ts.daemon.Start(); err != nil {
		return fmt.Errorf("failed to start swarmd: %w", err)
	}

	if err := ts.waitForService(ts.baseURL + "/health"); err != nil {
		return fmt.Errorf("swarmd failed to start: %w", err)
	}
	return nil
}

// Stop kills the daemon
func (ts *TestSystem) Stop() {
	if ts.daemon != nil && ts.daemon.Process != nil {
		ts.t.Log("Stopping swarmd...")
		ts.daemon.Process.Kill()
		ts.daemon.Wait()
	}
}

// waitForService waits for an HTTP service to become available
func (ts *TestSystem) waitForService(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := ts.httpClient.Get(url)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// ExecuteTask posts one task and decodes the result
func (ts *TestSystem) ExecuteTask(kind string, payload any) (int, cluster.TaskResult, error) {
	body, err := json.Marshal(struct {
		Kind    string `json:"kind"`
		Payload any    `json:"payload,omitempty"`
	}{Kind: kind, Payload: payload})
	if err != nil {
		return 0, cluster.TaskResult{}, err
	}

	resp, err := ts.httpClient.Post(ts.baseURL+"/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, cluster.TaskResult{}, err
	}
	defer resp.Body.Close()

	var res cluster.TaskResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return resp.StatusCode, cluster.TaskResult{}, err
	}
	return resp.StatusCode, res, nil
}

// Status fetches /status
func (ts *TestSystem) Status() (controller.Status, error) {
	var status controller.Status
	resp, err := ts.httpClient.Get(ts.baseURL + "/status")
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&status)
	return status, err
}

// Health fetches /health and returns the HTTP code alongside the body
func (ts *TestSystem) Health() (int, controller.Health, error) {
	var health controller.Health
	resp, err := ts.httpClient.Get(ts.baseURL + "/health")
	if err != nil {
		return 0, health, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&health)
	return resp.StatusCode, health, err
}

// Topology fetches /topology
func (ts *TestSystem) Topology() (mesh.Topology, error) {
	var topo mesh.Topology
	resp, err := ts.httpClient.Get(ts.baseURL + "/topology")
	if err != nil {
		return topo, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&topo)
	return topo, err
}

// TestSwarmDaemon runs end-to-end tests against a real swarmd process
func TestSwarmDaemon(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat("./bin/swarmd"); os.IsNotExist(err) {
		t.Skip("Skipping integration test: swarmd binary not found (go build -o bin/swarmd ../../cmd/swarmd first)")
	}

	ts := NewTestSystem(t)
	if err := ts.Start(); err != nil {
		t.Fatalf("Failed to start test system: %v", err)
	}
	defer ts.Stop()

	t.Run("EchoRoundTrip", func(t *testing.T) {
		testEchoRoundTrip(t, ts)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		testUnknownKind(t, ts)
	})

	t.Run("Health", func(t *testing.T) {
		testHealth(t, ts)
	})

	t.Run("Topology", func(t *testing.T) {
		testTopology(t, ts)
	})

	t.Run("ConcurrentTasks", func(t *testing.T) {
		testConcurrentTasks(t, ts)
	})

	t.Run("ScaleUnderLoad", func(t *testing.T) {
		testScaleUnderLoad(t, ts)
	})

	t.Run("GossipEndpoint", func(t *testing.T) {
		testGossipEndpoint(t, ts)
	})

	t.Run("StatusVisibility", func(t *testing.T) {
		testStatusVisibility(t, ts)
	})
}

// testEchoRoundTrip verifies one task travels to a node and back
func testEchoRoundTrip(t *testing.T, ts *TestSystem) {
	code, res, err := ts.ExecuteTask("echo", map[string]string{"msg": "hello"})
	if err != nil {
		t.Fatalf("Failed to execute task: %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", code)
	}
	if res.Status != cluster.StatusProcessed {
		t.Errorf("Expected processed, got %s (%s)", res.Status, res.Error)
	}
	if res.NodeID == "" {
		t.Error("Result has no node id")
	}

	var echoed map[string]string
	if err := json.Unmarshal(res.Payload, &echoed); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if echoed["msg"] != "hello" {
		t.Errorf("Expected payload echoed back, got %v", echoed)
	}
}

// testUnknownKind verifies an unregistered kind fails without refusing
func testUnknownKind(t *testing.T, ts *TestSystem) {
	code, res, err := ts.ExecuteTask("no-such-kind", nil)
	if err != nil {
		t.Fatalf("Failed to execute task: %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", code)
	}
	if res.Status != cluster.StatusFailed {
		t.Errorf("Expected failed, got %s", res.Status)
	}
	if res.Error == "" {
		t.Error("Expected an error message naming the missing handler")
	}
}

// testHealth verifies the liveness endpoint
func testHealth(t *testing.T, ts *TestSystem) {
	code, health, err := ts.Health()
	if err != nil {
		t.Fatalf("Failed to fetch health: %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", code)
	}
	if !health.Healthy {
		t.Errorf("Daemon reports unhealthy: %+v", health)
	}
	if health.NodesTotal < 1 {
		t.Errorf("Expected at least 1 node, got %d", health.NodesTotal)
	}
}

// testTopology verifies each node appears as a mesh peer
func testTopology(t *testing.T, ts *TestSystem) {
	status, err := ts.Status()
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}
	topo, err := ts.Topology()
	if err != nil {
		t.Fatalf("Failed to fetch topology: %v", err)
	}

	if topo.RouterID != "default_router" {
		t.Errorf("Expected router default_router, got %s", topo.RouterID)
	}
	if len(topo.Peers) != status.NodeCount {
		t.Errorf("Topology has %d peers for %d nodes", len(topo.Peers), status.NodeCount)
	}
}

// testConcurrentTasks verifies the daemon handles parallel submissions
func testConcurrentTasks(t *testing.T, ts *TestSystem) {
	numClients := 10
	var wg sync.WaitGroup
	errors := make(chan error, numClients)

	wg.Add(numClients)
	for i := 0; i < numClients; i++ {
		go func(id int) {
			defer wg.Done()
			_, res, err := ts.ExecuteTask("echo", map[string]int{"client": id})
			if err != nil {
				errors <- fmt.Errorf("client %d: %w", id, err)
				return
			}
			if res.Status != cluster.StatusProcessed {
				errors <- fmt.Errorf("client %d: status %s (%s)", id, res.Status, res.Error)
			}
		}(i)
	}
	wg.Wait()

	select {
	case err := <-errors:
		t.Error(err)
	default:
	}
}

// testScaleUnderLoad verifies sustained queue depth grows the fleet
func testScaleUnderLoad(t *testing.T, ts *TestSystem) {
	before, err := ts.Status()
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}

	// Hold several slow tasks in flight so the average queue depth stays
	// above the scale-up threshold of 2.
	numTasks := 6
	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			ts.ExecuteTask("sleep", map[string]int{"duration_ms": 500})
		}()
	}

	grown := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := ts.Status()
		if err == nil && status.NodeCount > before.NodeCount {
			grown = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	wg.Wait()

	if !grown {
		t.Errorf("Fleet did not grow beyond %d nodes under load", before.NodeCount)
	}
}

// testGossipEndpoint verifies envelope ingestion and rejection
func testGossipEndpoint(t *testing.T, ts *TestSystem) {
	env, err := cluster.NewGossipEnvelope("outsider", cluster.GossipPayload{
		Peers:  []string{"outsider"},
		Routes: []cluster.RouteDigest{{Destination: "outsider", Cost: 1, TTL: 5}},
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	body, _ := json.Marshal(env)

	// Digests from unknown senders are accepted and ignored
	resp, err := ts.httpClient.Post(ts.baseURL+"/gossip", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to post gossip: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}

	// Malformed envelopes are rejected
	resp, err = ts.httpClient.Post(ts.baseURL+"/gossip", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatalf("Failed to post gossip: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

// testStatusVisibility verifies the status endpoint reflects work done
func testStatusVisibility(t *testing.T, ts *TestSystem) {
	status, err := ts.Status()
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}

	if status.State != controller.StateRunning {
		t.Errorf("Expected running, got %s", status.State)
	}
	if status.NodeCount < 1 || status.NodeCount > status.MaxNodes {
		t.Errorf("Node count %d outside [1, %d]", status.NodeCount, status.MaxNodes)
	}
	if status.TasksProcessed == 0 {
		t.Error("Expected processed tasks by now")
	}
	if len(status.Nodes) != status.NodeCount {
		t.Errorf("Status lists %d nodes, count says %d", len(status.Nodes), status.NodeCount)
	}
}

// TestInProcessSwarm drives the full stack through its Go API without a
// daemon, so it runs everywhere
func TestInProcessSwarm(t *testing.T) {
	registry := cluster.NewHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
		return task.Payload, nil
	})
	registry.Register("sleep", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
		select {
		case <-time.After(300 * time.Millisecond):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ctrl := controller.New(
		controller.Config{
			ID:                   "itest",
			ExecuteTimeout:       5 * time.Second,
			ScaleUpThreshold:     2,
			ScaleDownThreshold:   1,
			DispatchIdleInterval: 20 * time.Millisecond,
			MetricsInterval:      time.Hour,
			AutoScale:            true,
		},
		fabric.Config{
			ID:           "itest",
			MaxNodes:     4,
			HealInterval: 50 * time.Millisecond,
			Node: node.Config{
				MaxQueueSize:      8,
				SpawnThreshold:    0.95,
				MaxChildren:       0,
				IdleCheckInterval: 20 * time.Millisecond,
			},
			Mesh: mesh.Config{
				GossipInterval:      50 * time.Millisecond,
				CleanupInterval:     time.Hour,
				PeerLivenessTimeout: time.Hour,
				RouteTTL:            time.Hour,
				MaxPeers:            10,
			},
		},
		registry, mesh.NopTransport{},
	)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Failed to start controller: %v", err)
	}
	defer ctrl.Stop()

	t.Run("RoundTrip", func(t *testing.T) {
		res, err := ctrl.Execute(context.Background(), cluster.Task{
			Kind:    "echo",
			Payload: json.RawMessage(`{"n":1}`),
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Status != cluster.StatusProcessed {
			t.Errorf("Expected processed, got %s (%s)", res.Status, res.Error)
		}
		if string(res.Payload) != `{"n":1}` {
			t.Errorf("Expected payload back, got %s", res.Payload)
		}
	})

	t.Run("GrowsUnderLoad", func(t *testing.T) {
		numTasks := 6
		var wg sync.WaitGroup
		wg.Add(numTasks)
		for i := 0; i < numTasks; i++ {
			go func() {
				defer wg.Done()
				ctrl.Execute(context.Background(), cluster.Task{Kind: "sleep"})
			}()
		}

		grown := false
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if ctrl.Fabric().NodeCount() > 1 {
				grown = true
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		wg.Wait()

		if !grown {
			t.Error("Fabric did not grow beyond 1 node under load")
		}
	})

	t.Run("MeshTracksFleet", func(t *testing.T) {
		topo := ctrl.Fabric().Router().Topology()
		if topo.RouterID != "itest_router" {
			t.Errorf("Expected router itest_router, got %s", topo.RouterID)
		}
		if len(topo.Peers) != ctrl.Fabric().NodeCount() {
			t.Errorf("Topology has %d peers for %d nodes", len(topo.Peers), ctrl.Fabric().NodeCount())
		}
	})
}
