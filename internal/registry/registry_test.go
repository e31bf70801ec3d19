package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(t.TempDir())
}

func TestAddPeerAndCanonicalOrder(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.AddPeer(Node{CameraID: "right", Address: "cam-right:8580"}))
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "cam-left:8580"}))

	peers := r.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "left", peers[0].Node.CameraID)
	assert.Equal(t, "right", peers[1].Node.CameraID)
	assert.Equal(t, StatusUnknown, peers[0].Status)
	assert.True(t, peers[0].Node.ManuallyConfigured)
}

func TestAddPeerRejectsUnknownRole(t *testing.T) {
	r := newTestRegistry(t)
	err := r.AddPeer(Node{CameraID: "overhead", Address: "cam-x:8580"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestNoDuplicateCameraIDs(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "old:8580"}))
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "new:8580"}))

	peers := r.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "new:8580", peers[0].Node.Address)
}

func TestDiscoveryDoesNotOverwriteManualEntry(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "manual:8580"}))

	updated, err := r.UpdateFromDiscovery(Node{CameraID: "left", Address: "discovered:8580"})
	require.NoError(t, err)
	assert.False(t, updated)

	got, ok := r.Get("left")
	require.True(t, ok)
	assert.Equal(t, "manual:8580", got.Node.Address)
	assert.True(t, got.Node.ManuallyConfigured)
}

func TestDiscoveryUpdatesDiscoveredEntry(t *testing.T) {
	r := newTestRegistry(t)

	updated, err := r.UpdateFromDiscovery(Node{CameraID: "right", Address: "a:8580"})
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = r.UpdateFromDiscovery(Node{CameraID: "right", Address: "b:8580"})
	require.NoError(t, err)
	assert.True(t, updated)

	got, ok := r.Get("right")
	require.True(t, ok)
	assert.Equal(t, "b:8580", got.Node.Address)
	assert.False(t, got.Node.ManuallyConfigured)
}

func TestRemovePeerDestroysState(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "a:8580"}))
	require.NoError(t, r.RemovePeer("left"))

	_, ok := r.Get("left")
	assert.False(t, ok)
	assert.ErrorIs(t, r.RemovePeer("left"), ErrPeerNotFound)
}

func TestSetLiveness(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "a:8580"}))

	seen := time.Date(2026, 5, 16, 15, 4, 5, 0, time.UTC)
	snap := json.RawMessage(`{"recording":false}`)
	r.SetLiveness("left", StatusOnline, snap, seen)

	got, ok := r.Get("left")
	require.True(t, ok)
	assert.Equal(t, StatusOnline, got.Status)
	assert.Equal(t, seen, got.LastSeen)
	assert.JSONEq(t, `{"recording":false}`, string(got.LastSnapshot))

	// A failed poll marks offline but keeps last_seen and the old snapshot.
	r.SetLiveness("left", StatusOffline, nil, seen.Add(2*time.Second))
	got, _ = r.Get("left")
	assert.Equal(t, StatusOffline, got.Status)
	assert.Equal(t, seen, got.LastSeen)
	assert.JSONEq(t, `{"recording":false}`, string(got.LastSnapshot))
}

func TestSetLivenessUnknownPeerIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	r.SetLiveness("left", StatusOnline, nil, time.Now())
	assert.Empty(t, r.Peers())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "a:8580", Position: "near goal"}))
	require.NoError(t, r.AddPeer(Node{CameraID: "right", Address: "b:8580"}))
	r.SetLiveness("left", StatusOnline, nil, time.Now())

	reloaded := New(dir)
	require.NoError(t, reloaded.Load())

	want := []Node{
		{CameraID: "left", Address: "a:8580", Position: "near goal", ManuallyConfigured: true},
		{CameraID: "right", Address: "b:8580", ManuallyConfigured: true},
	}
	got := make([]Node, 0, 2)
	for _, p := range reloaded.Peers() {
		got = append(got, p.Node)
		// Liveness is not persisted.
		assert.Equal(t, StatusUnknown, p.Status)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("persisted nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedSkipsExistingPeers(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddPeer(Node{CameraID: "left", Address: "operator:8580"}))

	seeds := []config.PeerSeed{
		{CameraID: "left", Address: "seed:8580"},
		{CameraID: "right", Address: "cam-right:8580"},
	}
	require.NoError(t, r.Seed(seeds))

	got, _ := r.Get("left")
	assert.Equal(t, "operator:8580", got.Node.Address)
	_, ok := r.Get("right")
	assert.True(t, ok)
}
