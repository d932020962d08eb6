package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/mesh"
	"github.com/dreamware/swarm/internal/node"
)

func echoRegistry() *cluster.HandlerRegistry {
	reg := cluster.NewHandlerRegistry()
	reg.Register("echo", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
		return task.Payload, nil
	})
	return reg
}

// testFabricConfig returns a tuning with background loops effectively
// disabled and fast node idle ticks.
func testFabricConfig(id string) Config {
	return Config{
		ID:           id,
		MaxNodes:     10,
		HealInterval: time.Hour,
		Node: node.Config{
			MaxQueueSize:            10,
			SpawnThreshold:          0.8,
			MaxChildren:             0,
			DegradeFailureThreshold: 10,
			DegradeCompletionFloor:  5,
			IdleCheckInterval:       20 * time.Millisecond,
		},
		Mesh: mesh.Config{
			GossipInterval:      time.Hour,
			CleanupInterval:     time.Hour,
			PeerLivenessTimeout: time.Hour,
			RouteTTL:            time.Hour,
			MaxPeers:            50,
			RouteTTLHops:        10,
		},
	}
}

func TestFabricSpawnNode(t *testing.T) {
	f := New(testFabricConfig("fab-spawn"), echoRegistry(), nil, nil)
	defer f.Stop()

	n, err := f.SpawnNode("")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, node.StateHealthy, n.State(), "Fabric-spawned nodes start immediately")
	assert.Empty(t, n.ParentID())
	assert.Equal(t, 1, f.NodeCount())

	// Membership is mirrored into the mesh directory
	peers := f.Router().Peers()
	require.Contains(t, peers, n.ID())
	assert.Equal(t, "localhost", peers[n.ID()].Address)

	child, err := f.SpawnNode(n.ID())
	require.NoError(t, err)
	assert.Equal(t, n.ID(), child.ParentID())
	assert.Equal(t, 2, f.NodeCount())
}

func TestFabricCapacity(t *testing.T) {
	cfg := testFabricConfig("fab-capacity")
	cfg.MaxNodes = 3
	f := New(cfg, echoRegistry(), nil, nil)
	defer f.Stop()

	for i := 0; i < 3; i++ {
		_, err := f.SpawnNode("")
		require.NoError(t, err)
	}

	_, err := f.SpawnNode("")
	require.ErrorIs(t, err, ErrCapacityExceeded, "Fourth spawn must be refused at MaxNodes=3")
	assert.Equal(t, 3, f.NodeCount())
	assert.Equal(t, 3, f.Router().PeerCount())
}

func TestFabricRemoveNode(t *testing.T) {
	f := New(testFabricConfig("fab-remove"), echoRegistry(), nil, nil)
	defer f.Stop()

	n, err := f.SpawnNode("")
	require.NoError(t, err)

	require.NoError(t, f.RemoveNode(n.ID()))
	assert.Equal(t, 0, f.NodeCount())
	assert.Equal(t, node.StateTerminated, n.State(), "Removal stops the node")
	assert.Equal(t, 0, f.Router().PeerCount(), "Removal unregisters the peer")

	err = f.RemoveNode("no-such-node")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

// TestFabricHealing verifies a terminated node disappears from the live
// set and the mesh within one healing interval.
func TestFabricHealing(t *testing.T) {
	cfg := testFabricConfig("fab-healing")
	cfg.HealInterval = 30 * time.Millisecond
	f := New(cfg, echoRegistry(), nil, nil)
	f.Start()
	defer f.Stop()

	keeper, err := f.SpawnNode("")
	require.NoError(t, err)
	victim, err := f.SpawnNode("")
	require.NoError(t, err)
	require.Equal(t, 2, f.NodeCount())

	victim.Stop()

	require.Eventually(t, func() bool {
		return f.NodeCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "Healing should reap the terminated node")

	remaining := f.Nodes()
	require.Len(t, remaining, 1)
	assert.Equal(t, keeper.ID(), remaining[0].ID())
	peers := f.Router().Peers()
	assert.NotContains(t, peers, victim.ID(), "Reaped nodes leave the mesh too")
	assert.Contains(t, peers, keeper.ID())
}

// TestFabricAdoption verifies overload-spawned children join the live set
// through the fabric and respect its ceiling.
func TestFabricAdoption(t *testing.T) {
	t.Run("admitted under the ceiling", func(t *testing.T) {
		cfg := testFabricConfig("fab-adopt")
		cfg.Node.MaxQueueSize = 4
		cfg.Node.SpawnThreshold = 0.5
		cfg.Node.MaxChildren = 1

		reg := cluster.NewHandlerRegistry()
		started := make(chan string, 16)
		release := make(chan struct{})
		reg.Register("block", func(ctx context.Context, task cluster.Task) (json.RawMessage, error) {
			started <- task.ID
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, nil
		})
		defer close(release)

		f := New(cfg, reg, nil, nil)
		defer f.Stop()

		parent, err := f.SpawnNode("")
		require.NoError(t, err)

		// Occupy the worker, then pile up queue load past the threshold
		require.NoError(t, parent.Submit(cluster.Task{ID: "t0", Kind: "block"}))
		<-started
		for i := 1; i <= 3; i++ {
			require.NoError(t, parent.Submit(cluster.Task{ID: fmt.Sprintf("t%d", i), Kind: "block"}))
		}

		require.Eventually(t, func() bool {
			return f.NodeCount() == 2
		}, 2*time.Second, 10*time.Millisecond, "The overload child should be adopted")

		children := parent.Children()
		require.Len(t, children, 1)
		child := children[0]
		assert.Equal(t, parent.ID(), child.ParentID())
		assert.Equal(t, node.StateHealthy, child.State(), "Adoption starts the child")
		assert.Contains(t, f.Router().Peers(), child.ID())
	})

	t.Run("refused at the ceiling", func(t *testing.T) {
		cfg := testFabricConfig("fab-adopt-full")
		cfg.MaxNodes = 1
		cfg.Node.MaxChildren = 1
		f := New(cfg, echoRegistry(), nil, nil)
		defer f.Stop()

		parent, err := f.SpawnNode("")
		require.NoError(t, err)

		_, err = parent.SpawnChild()
		require.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Equal(t, node.StateHealthy, parent.State(), "A refused spawn leaves the parent healthy")
		assert.Empty(t, parent.Children())
		assert.Equal(t, 1, f.NodeCount())
	})
}

func TestFabricStatus(t *testing.T) {
	cfg := testFabricConfig("fab-status")
	cfg.MaxNodes = 5
	f := New(cfg, echoRegistry(), nil, nil)
	defer f.Stop()

	a, err := f.SpawnNode("")
	require.NoError(t, err)
	_, err = f.SpawnNode(a.ID())
	require.NoError(t, err)

	st := f.Status()
	assert.Equal(t, "fab-status", st.FabricID)
	assert.Equal(t, 2, st.NodeCount)
	assert.Equal(t, 5, st.MaxNodes)
	require.Len(t, st.Nodes, 2)
	assert.Equal(t, "fab-status_router", st.Topology.RouterID)
	assert.Len(t, st.Topology.Peers, 2)
}

func TestFabricStop(t *testing.T) {
	f := New(testFabricConfig("fab-stop"), echoRegistry(), nil, nil)
	f.Start()

	a, err := f.SpawnNode("")
	require.NoError(t, err)
	b, err := f.SpawnNode("")
	require.NoError(t, err)

	f.Stop()

	assert.Equal(t, node.StateTerminated, a.State())
	assert.Equal(t, node.StateTerminated, b.State())

	_, err = f.SpawnNode("")
	assert.ErrorIs(t, err, ErrStopped, "A stopped fabric must not grow")
}

func TestFabricStopIdempotent(t *testing.T) {
	f := New(testFabricConfig("fab-stop-twice"), echoRegistry(), nil, nil)
	f.Start()
	_, err := f.SpawnNode("")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Stop()
		}()
	}
	wg.Wait()

	// Stop before Start is also safe
	fresh := New(testFabricConfig("fab-stop-fresh"), echoRegistry(), nil, nil)
	fresh.Stop()
	fresh.Start()
}
