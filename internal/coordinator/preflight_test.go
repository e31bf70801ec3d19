package coordinator

import (
	"context"
	"testing"

	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkByName(t *testing.T, node NodePreflight, name string) Check {
	t.Helper()
	for _, c := range node.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("node %s has no check %q", node.CameraID, name)
	return Check{}
}

func nodeByID(t *testing.T, result PreflightResult, id string) NodePreflight {
	t.Helper()
	for _, n := range result.Nodes {
		if n.CameraID == id {
			return n
		}
	}
	t.Fatalf("no preflight entry for %s", id)
	return NodePreflight{}
}

func TestPreflightAllHealthy(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)

	result := r.coord.RunPreflight(context.Background())

	assert.True(t, result.Passed)
	assert.Empty(t, result.MissingRoles)
	require.Len(t, result.Nodes, 3)

	// Canonical role order.
	assert.Equal(t, "left", result.Nodes[0].CameraID)
	assert.Equal(t, "center", result.Nodes[1].CameraID)
	assert.Equal(t, "right", result.Nodes[2].CameraID)
	for _, n := range result.Nodes {
		assert.True(t, n.Passed, "node %s", n.CameraID)
	}
}

func TestPreflightFailsOnMissingRole(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)
	require.NoError(t, r.reg.RemovePeer("right"))

	result := r.coord.RunPreflight(context.Background())

	assert.False(t, result.Passed, "missing role must fail preflight even with healthy nodes")
	assert.Equal(t, []string{"right"}, result.MissingRoles)
	assert.Len(t, result.Nodes, 2)
}

func TestPreflightUnreachablePeer(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)
	r.reg.SetLiveness("left", registry.StatusOffline, nil, r.coord.clock.Now())

	result := r.coord.RunPreflight(context.Background())

	assert.False(t, result.Passed)
	left := nodeByID(t, result, "left")
	assert.False(t, left.Passed)
	assert.False(t, checkByName(t, left, "reachable").Passed)
	// The stale snapshot still answers the remaining checks.
	assert.True(t, checkByName(t, left, "camera_detected").Passed)
}

func TestPreflightChecksThresholds(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)

	// Self node: overheated camera fails exactly the temperature check.
	r.driver.TemperatureC = 80

	result := r.coord.RunPreflight(context.Background())
	self := nodeByID(t, result, "center")

	assert.False(t, result.Passed)
	assert.False(t, self.Passed)
	assert.True(t, checkByName(t, self, "reachable").Passed)
	assert.True(t, checkByName(t, self, "camera_detected").Passed)
	assert.True(t, checkByName(t, self, "clock_within_tolerance").Passed)
	assert.True(t, checkByName(t, self, "storage_free").Passed)
	assert.False(t, checkByName(t, self, "temperature").Passed)
}

func TestPreflightPeerWithoutSnapshot(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)
	// "right" was registered but never successfully polled.
	require.NoError(t, r.reg.RemovePeer("right"))
	require.NoError(t, r.reg.AddPeer(registry.Node{CameraID: "right", Address: "right:8580"}))

	result := r.coord.RunPreflight(context.Background())

	right := nodeByID(t, result, "right")
	assert.False(t, right.Passed)
	assert.Equal(t, "no status snapshot", checkByName(t, right, "camera_detected").Detail)
}

func TestPreflightNeverEnforcedByStartAll(t *testing.T) {
	r := newRig(t)
	// No liveness data at all: preflight fails, start_all still proceeds.
	result := r.coord.RunPreflight(context.Background())
	require.False(t, result.Passed)

	session, err := r.coord.StartAll(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StateRecording, session.Status)
}
