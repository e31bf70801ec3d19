package coordinator

import (
	"context"
	"testing"

	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfStatus(t *testing.T) {
	r := newRig(t)

	snap := r.coord.SelfStatus(context.Background())

	assert.Equal(t, "center", snap.CameraID)
	assert.True(t, snap.CameraDetected)
	assert.False(t, snap.Recording)
	assert.Equal(t, int64(20<<30), snap.FreeBytes)
	assert.Equal(t, 0.0, snap.Clock.OffsetMS)
	assert.True(t, snap.Clock.WithinTolerance)
}

func TestAggregatedStatusSummary(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)

	agg := r.coord.AggregatedStatus(context.Background())

	want := Summary{
		OnlineCount:         3,
		TotalCount:          3,
		AnyRecording:        false,
		AllSynced:           true,
		TotalFreeBytes:      (20 << 30) + 2*(15<<30),
		AvgMinutesRemaining: (22 + 17 + 17) / 3.0,
	}
	if diff := cmp.Diff(want, agg.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, agg.Nodes, 3)
	assert.Equal(t, "center", agg.Nodes[0].CameraID)
	assert.True(t, agg.Nodes[0].Self)
}

func TestAggregatedStatusOfflinePeer(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)
	r.reg.SetLiveness("right", registry.StatusOffline, nil, r.coord.clock.Now())

	agg := r.coord.AggregatedStatus(context.Background())

	assert.Equal(t, 2, agg.Summary.OnlineCount)
	assert.Equal(t, 3, agg.Summary.TotalCount)
	assert.False(t, agg.Summary.AllSynced, "offline node cannot be counted as synced")

	for _, n := range agg.Nodes {
		if n.CameraID == "right" {
			assert.False(t, n.Online)
			assert.NotNil(t, n.Status, "stale snapshot stays visible")
		}
	}
}

func TestAggregatedStatusAnyRecording(t *testing.T) {
	r := newRig(t)
	r.markPeersHealthy(t)

	_, err := r.coord.StartAll(context.Background(), "s1")
	require.NoError(t, err)

	agg := r.coord.AggregatedStatus(context.Background())
	assert.True(t, agg.Summary.AnyRecording)
}
