// SPDX-License-Identifier: MIT

// Package liveness polls every registered peer's status endpoint on a fixed
// interval and keeps the registry's PeerState current. Failures mark a peer
// offline; only explicit removal deletes it.
package liveness

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
	"github.com/fieldrig/camsyncd/internal/nodeclient"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Poller is the slice of the node client the monitor needs.
type Poller interface {
	Status(ctx context.Context) (nodeclient.StatusSnapshot, json.RawMessage, error)
}

// ClientFactory builds a poller for a peer address.
type ClientFactory func(addr string) Poller

// Clock interface for mocking time
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer interface for mocking time.Timer
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Monitor drives the polling loop.
type Monitor struct {
	registry *registry.Registry
	factory  ClientFactory

	Interval    time.Duration
	PollTimeout time.Duration

	clock  Clock
	logger zerolog.Logger
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source (for tests).
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// New creates a monitor. The default factory builds nodeclient clients with
// the poll timeout.
func New(reg *registry.Registry, interval, pollTimeout time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		registry:    reg,
		Interval:    interval,
		PollTimeout: pollTimeout,
		clock:       realClock{},
		logger:      log.WithComponent("liveness"),
	}
	m.factory = func(addr string) Poller {
		return nodeclient.New(addr, pollTimeout)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithClientFactory overrides peer client construction (for tests).
func WithClientFactory(f ClientFactory) Option {
	return func(m *Monitor) { m.factory = f }
}

// Start begins the polling loop in a background goroutine.
// It returns immediately. The loop stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	m.logger.Info().Dur("interval", m.Interval).Msg("liveness monitor started")

	timer := m.clock.NewTimer(m.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("liveness monitor stopping")
			return
		case <-timer.C():
			m.PollOnce(ctx)
			timer.Reset(m.Interval)
		}
	}
}

// PollOnce polls every known peer concurrently with a short per-call
// timeout and updates the registry. A slow peer must not delay the
// detection of the others.
func (m *Monitor) PollOnce(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range m.registry.Peers() {
		peer := peer
		g.Go(func() error {
			m.pollPeer(ctx, peer)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) pollPeer(ctx context.Context, peer registry.PeerState) {
	callCtx, cancel := context.WithTimeout(ctx, m.PollTimeout)
	defer cancel()

	snap, raw, err := m.factory(peer.Node.Address).Status(callCtx)
	now := m.clock.Now()

	if err != nil {
		metrics.RecordLivenessPollError()
		m.registry.SetLiveness(peer.Node.CameraID, registry.StatusOffline, nil, now)
		if peer.Status != registry.StatusOffline {
			m.logger.Warn().
				Err(err).
				Str(log.FieldPeer, peer.Node.CameraID).
				Msg("peer went offline")
		}
		return
	}

	status := registry.StatusOnline
	if snap.Recording {
		status = registry.StatusRecording
	}
	m.registry.SetLiveness(peer.Node.CameraID, status, raw, now)

	if peer.Status == registry.StatusOffline || peer.Status == registry.StatusUnknown {
		m.logger.Info().
			Str(log.FieldPeer, peer.Node.CameraID).
			Str(log.FieldNewState, string(status)).
			Msg("peer is reachable")
	}
}
