package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldrig/camsyncd/internal/nodeclient"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPoller struct {
	mu   sync.Mutex
	snap nodeclient.StatusSnapshot
	err  error
}

func (s *stubPoller) Status(ctx context.Context) (nodeclient.StatusSnapshot, json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nodeclient.StatusSnapshot{}, nil, s.err
	}
	raw, _ := json.Marshal(s.snap)
	return s.snap, raw, nil
}

func (s *stubPoller) set(snap nodeclient.StatusSnapshot, err error) {
	s.mu.Lock()
	s.snap = snap
	s.err = err
	s.mu.Unlock()
}

func newMonitorWithPeers(t *testing.T, pollers map[string]*stubPoller) (*Monitor, *registry.Registry) {
	t.Helper()
	reg := registry.New(t.TempDir())
	for id := range pollers {
		require.NoError(t, reg.AddPeer(registry.Node{CameraID: id, Address: id + ":8580"}))
	}
	factory := func(addr string) Poller {
		for id, p := range pollers {
			if addr == id+":8580" {
				return p
			}
		}
		t.Fatalf("unexpected address %s", addr)
		return nil
	}
	m := New(reg, 2*time.Second, time.Second, WithClientFactory(factory))
	return m, reg
}

func TestPollOnceMarksOnline(t *testing.T) {
	left := &stubPoller{}
	left.set(nodeclient.StatusSnapshot{CameraID: "left", FreeBytes: 99}, nil)
	m, reg := newMonitorWithPeers(t, map[string]*stubPoller{"left": left})

	m.PollOnce(context.Background())

	got, ok := reg.Get("left")
	require.True(t, ok)
	assert.Equal(t, registry.StatusOnline, got.Status)
	assert.False(t, got.LastSeen.IsZero())
	assert.Contains(t, string(got.LastSnapshot), `"free_bytes":99`)
}

func TestPollOnceMarksRecording(t *testing.T) {
	left := &stubPoller{}
	left.set(nodeclient.StatusSnapshot{CameraID: "left", Recording: true}, nil)
	m, reg := newMonitorWithPeers(t, map[string]*stubPoller{"left": left})

	m.PollOnce(context.Background())

	got, _ := reg.Get("left")
	assert.Equal(t, registry.StatusRecording, got.Status)
}

func TestPollFailureMarksOfflineWithoutRemoval(t *testing.T) {
	left := &stubPoller{}
	left.set(nodeclient.StatusSnapshot{CameraID: "left"}, nil)
	m, reg := newMonitorWithPeers(t, map[string]*stubPoller{"left": left})

	m.PollOnce(context.Background())
	got, _ := reg.Get("left")
	require.Equal(t, registry.StatusOnline, got.Status)
	lastSeen := got.LastSeen

	left.set(nodeclient.StatusSnapshot{}, errors.New("connection refused"))
	m.PollOnce(context.Background())

	got, ok := reg.Get("left")
	require.True(t, ok, "peer must stay registered")
	assert.Equal(t, registry.StatusOffline, got.Status)
	assert.Equal(t, lastSeen, got.LastSeen, "last_seen keeps the last successful poll")

	// Recovery flips it back.
	left.set(nodeclient.StatusSnapshot{CameraID: "left"}, nil)
	m.PollOnce(context.Background())
	got, _ = reg.Get("left")
	assert.Equal(t, registry.StatusOnline, got.Status)
}

func TestPollOnceCoversAllPeers(t *testing.T) {
	left := &stubPoller{}
	left.set(nodeclient.StatusSnapshot{CameraID: "left"}, nil)
	right := &stubPoller{}
	right.set(nodeclient.StatusSnapshot{}, errors.New("down"))
	m, reg := newMonitorWithPeers(t, map[string]*stubPoller{"left": left, "right": right})

	m.PollOnce(context.Background())

	gotLeft, _ := reg.Get("left")
	gotRight, _ := reg.Get("right")
	assert.Equal(t, registry.StatusOnline, gotLeft.Status)
	assert.Equal(t, registry.StatusOffline, gotRight.Status)
}
