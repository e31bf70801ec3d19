package health

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fieldrig/camsyncd/internal/capture"
	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDisk struct {
	status diskman.Status
	err    error
}

func (s *stubDisk) Status(context.Context) (diskman.Status, error) { return s.status, s.err }
func (s *stubDisk) Manifest(string) (diskman.Manifest, error) {
	return diskman.Manifest{}, diskman.ErrManifestNotFound
}
func (s *stubDisk) MarkOffloaded(string) error { return nil }

func TestHealthAlwaysHealthyWithoutVerbose(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewCaptureChecker(&capture.Fake{Detected: false}, 75))

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthVerboseSurfacesFailures(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewCaptureChecker(&capture.Fake{Detected: false}, 75))

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusUnhealthy, resp.Checks["camera"].Status)
}

func TestReadyDegradedStillReady(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewCaptureChecker(&capture.Fake{Detected: true, TemperatureC: 80}, 75))

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadyUnhealthyStorageBlocks(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewStorageChecker(&stubDisk{status: diskman.Status{FreeBytes: 1 << 30}}, 10<<30))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestClockCheckerTolerance(t *testing.T) {
	tracker := clocksync.NewMaster(5)
	m := NewManager("test")
	m.RegisterChecker(NewClockChecker(tracker))

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Checks["clock"].Status)
}

func TestPeerChecker(t *testing.T) {
	reg := registry.New(t.TempDir())

	checker := NewPeerChecker(reg)
	result := checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status, "empty registry is degraded, not dead")

	require.NoError(t, reg.AddPeer(registry.Node{CameraID: "left", Address: "left:8580"}))
	result = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status, "registered but unreachable peer")
}
