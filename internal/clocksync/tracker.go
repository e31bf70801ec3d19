// SPDX-License-Identifier: MIT

// Package clocksync tracks this node's estimated offset from the master
// clock and schedules coordinated instants against master time.
//
// Offset sign convention: OffsetMS = local − master. Master time is
// therefore local time minus the offset. On the master node the offset is
// pinned to zero.
package clocksync

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
	"github.com/rs/zerolog"
)

// Confidence classifies how trustworthy the current offset estimate is.
type Confidence string

const (
	ConfidenceExcellent Confidence = "excellent"
	ConfidenceGood      Confidence = "good"
	ConfidenceFair      Confidence = "fair"
	ConfidencePoor      Confidence = "poor"
	ConfidenceError     Confidence = "error"
	ConfidenceTimeout   Confidence = "timeout"
	ConfidenceSimulated Confidence = "simulated"
)

// Status is the externally visible sync state.
type Status struct {
	OffsetMS        float64    `json:"offset_ms"`
	Confidence      Confidence `json:"confidence"`
	WithinTolerance bool       `json:"within_tolerance"`
	LastSync        time.Time  `json:"last_sync"`
}

// Sampler measures the signed offset (local − master) in milliseconds.
type Sampler interface {
	Sample(ctx context.Context) (float64, error)
}

// Tracker maintains the offset estimate. A failed measurement downgrades
// confidence but keeps the previous numeric offset: stale-but-known beats
// unknown.
type Tracker struct {
	mu         sync.Mutex
	offsetMS   float64
	confidence Confidence
	measuredAt time.Time

	maxOffsetMS float64
	sampler     Sampler // nil on the master and in simulated mode
	isMaster    bool
	clock       Clock
	logger      zerolog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source (for tests).
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// New creates a tracker that measures against the master via sampler.
// A nil sampler puts the tracker into simulated mode: offset zero with
// confidence "simulated", for bench setups without a reachable master.
func New(sampler Sampler, maxOffsetMS float64, opts ...Option) *Tracker {
	t := &Tracker{
		maxOffsetMS: maxOffsetMS,
		sampler:     sampler,
		confidence:  ConfidenceSimulated,
		clock:       RealClock{},
		logger:      log.WithComponent("clocksync"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewMaster creates the tracker for the master node itself: offset is zero
// by definition and never measured.
func NewMaster(maxOffsetMS float64, opts ...Option) *Tracker {
	t := New(nil, maxOffsetMS, opts...)
	t.isMaster = true
	t.confidence = ConfidenceExcellent
	return t
}

// Classify maps an absolute offset to a confidence bucket.
func Classify(offsetMS, maxOffsetMS float64) Confidence {
	abs := offsetMS
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 1:
		return ConfidenceExcellent
	case abs < maxOffsetMS:
		return ConfidenceGood
	case abs < 2*maxOffsetMS:
		return ConfidenceFair
	default:
		return ConfidencePoor
	}
}

// Status returns the current sync state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	abs := t.offsetMS
	if abs < 0 {
		abs = -abs
	}
	return Status{
		OffsetMS:        t.offsetMS,
		Confidence:      t.confidence,
		WithinTolerance: abs <= t.maxOffsetMS,
		LastSync:        t.measuredAt,
	}
}

// MasterTime returns the current time in the master's clock domain.
func (t *Tracker) MasterTime() time.Time {
	t.mu.Lock()
	offset := t.offsetMS
	t.mu.Unlock()
	return t.clock.Now().Add(-time.Duration(offset * float64(time.Millisecond)))
}

// SyncEventTime returns the next whole-second boundary in master time,
// used for coordinated audible cues.
func (t *Tracker) SyncEventTime() time.Time {
	return t.MasterTime().Truncate(time.Second).Add(time.Second)
}

// ForceSync performs one immediate measurement and returns the resulting
// status. On the master and in simulated mode it is a no-op refresh.
func (t *Tracker) ForceSync(ctx context.Context) Status {
	t.measure(ctx)
	return t.Status()
}

func (t *Tracker) measure(ctx context.Context) {
	if t.isMaster || t.sampler == nil {
		t.mu.Lock()
		t.measuredAt = t.clock.Now()
		t.mu.Unlock()
		return
	}

	offset, err := t.sampler.Sample(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		// Keep the stale offset, only the confidence degrades.
		t.confidence = ConfidenceError
		outcome := "error"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			t.confidence = ConfidenceTimeout
			outcome = "timeout"
		}
		metrics.RecordClockSync(outcome)
		t.logger.Warn().
			Err(err).
			Float64(log.FieldOffsetMS, t.offsetMS).
			Str(log.FieldConfidence, string(t.confidence)).
			Msg("offset measurement failed, keeping stale offset")
		return
	}

	t.offsetMS = offset
	t.confidence = Classify(offset, t.maxOffsetMS)
	t.measuredAt = t.clock.Now()
	metrics.RecordClockSync("success")

	abs := offset
	if abs < 0 {
		abs = -abs
	}
	metrics.SetClockOffset(offset, abs <= t.maxOffsetMS)
	t.logger.Debug().
		Float64(log.FieldOffsetMS, offset).
		Str(log.FieldConfidence, string(t.confidence)).
		Msg("offset updated")
}

// Run measures on a fixed interval until ctx is cancelled. It returns
// after the first measurement has been attempted.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	t.measure(ctx)
	go t.loop(ctx, interval)
}

func (t *Tracker) loop(ctx context.Context, interval time.Duration) {
	timer := t.clock.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			t.measure(ctx)
			timer.Reset(interval)
		}
	}
}
