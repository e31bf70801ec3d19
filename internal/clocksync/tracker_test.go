package clocksync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) NewTimer(d time.Duration) Timer {
	return &fakeTimer{ch: make(chan time.Time)}
}

type fakeTimer struct {
	ch chan time.Time
}

func (f *fakeTimer) C() <-chan time.Time        { return f.ch }
func (f *fakeTimer) Stop() bool                 { return true }
func (f *fakeTimer) Reset(d time.Duration) bool { return true }

type stubSampler struct {
	offset float64
	err    error
}

func (s *stubSampler) Sample(ctx context.Context) (float64, error) {
	return s.offset, s.err
}

func TestClassify(t *testing.T) {
	const maxOffset = 5.0

	tests := []struct {
		offset float64
		want   Confidence
	}{
		{0.5, ConfidenceExcellent},
		{3, ConfidenceGood},
		{8, ConfidenceFair},
		{20, ConfidencePoor},
		{-0.5, ConfidenceExcellent},
		{-3, ConfidenceGood},
		{-8, ConfidenceFair},
		{-20, ConfidencePoor},
		{0, ConfidenceExcellent},
		{5, ConfidenceFair},  // boundary: not < max
		{10, ConfidencePoor}, // boundary: not < 2*max
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.offset, maxOffset), "offset=%v", tt.offset)
	}
}

func TestForceSyncUpdatesOffset(t *testing.T) {
	sampler := &stubSampler{offset: 3.2}
	tracker := New(sampler, 5)

	st := tracker.ForceSync(context.Background())

	assert.Equal(t, 3.2, st.OffsetMS)
	assert.Equal(t, ConfidenceGood, st.Confidence)
	assert.True(t, st.WithinTolerance)
	assert.False(t, st.LastSync.IsZero())
}

func TestFailedMeasurementKeepsStaleOffset(t *testing.T) {
	sampler := &stubSampler{offset: 2.5}
	tracker := New(sampler, 5)

	st := tracker.ForceSync(context.Background())
	require.Equal(t, 2.5, st.OffsetMS)
	lastSync := st.LastSync

	sampler.err = errors.New("probe refused")
	st = tracker.ForceSync(context.Background())

	assert.Equal(t, 2.5, st.OffsetMS, "stale offset must be retained")
	assert.Equal(t, ConfidenceError, st.Confidence)
	assert.True(t, st.WithinTolerance, "tolerance judged on retained offset")
	assert.Equal(t, lastSync, st.LastSync, "last_sync unchanged on failure")
}

func TestTimeoutMeasurementSetsTimeoutConfidence(t *testing.T) {
	sampler := &stubSampler{err: context.DeadlineExceeded}
	tracker := New(sampler, 5)

	st := tracker.ForceSync(context.Background())
	assert.Equal(t, ConfidenceTimeout, st.Confidence)
}

func TestOutOfToleranceOffset(t *testing.T) {
	sampler := &stubSampler{offset: -12}
	tracker := New(sampler, 5)

	st := tracker.ForceSync(context.Background())
	assert.Equal(t, ConfidencePoor, st.Confidence)
	assert.False(t, st.WithinTolerance)
}

func TestMasterTrackerIsAlwaysZero(t *testing.T) {
	now := time.Date(2026, 5, 16, 15, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	tracker := NewMaster(5, WithClock(clock))

	st := tracker.ForceSync(context.Background())
	assert.Equal(t, 0.0, st.OffsetMS)
	assert.Equal(t, ConfidenceExcellent, st.Confidence)
	assert.True(t, st.WithinTolerance)

	assert.Equal(t, now, tracker.MasterTime())
}

func TestRunStampsLastSyncInAllModes(t *testing.T) {
	now := time.Date(2026, 5, 16, 15, 0, 0, 0, time.UTC)

	trackers := map[string]*Tracker{
		"master":    NewMaster(5, WithClock(newFakeClock(now))),
		"simulated": New(nil, 5, WithClock(newFakeClock(now))),
	}
	for name, tracker := range trackers {
		ctx, cancel := context.WithCancel(context.Background())
		tracker.Run(ctx, time.Second)
		cancel()

		st := tracker.Status()
		assert.Equal(t, now, st.LastSync, "%s: last_sync stamped on startup", name)
	}
}

func TestSimulatedModeWithoutSampler(t *testing.T) {
	tracker := New(nil, 5)
	st := tracker.Status()
	assert.Equal(t, ConfidenceSimulated, st.Confidence)
	assert.True(t, st.WithinTolerance)
}

func TestMasterTimeAppliesOffset(t *testing.T) {
	now := time.Date(2026, 5, 16, 15, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	// Local clock runs 40ms ahead of the master.
	tracker := New(&stubSampler{offset: 40}, 5, WithClock(clock))
	tracker.ForceSync(context.Background())

	assert.Equal(t, now.Add(-40*time.Millisecond), tracker.MasterTime())
}

func TestSyncEventTimeIsNextSecondBoundary(t *testing.T) {
	now := time.Date(2026, 5, 16, 15, 0, 0, 250_000_000, time.UTC)
	clock := newFakeClock(now)
	tracker := NewMaster(5, WithClock(clock))

	want := time.Date(2026, 5, 16, 15, 0, 1, 0, time.UTC)
	assert.Equal(t, want, tracker.SyncEventTime())
}

func TestHTTPSamplerAgainstSkewedMaster(t *testing.T) {
	// Master reports a clock 100ms behind ours.
	const skew = 100 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		reply := `{"time":"` + time.Now().Add(-skew).Format(time.RFC3339Nano) + `"}`
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()

	sampler := NewHTTPSampler(srv.URL, 2*time.Second)
	offset, err := sampler.Sample(context.Background())
	require.NoError(t, err)

	// Loopback RTT is tiny, the estimate should land near +100ms.
	assert.InDelta(t, 100, offset, 25)
}

func TestHTTPSamplerAllProbesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sampler := NewHTTPSampler(srv.URL, time.Second)
	_, err := sampler.Sample(context.Background())
	require.Error(t, err)
}
