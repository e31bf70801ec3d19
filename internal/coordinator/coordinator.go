// SPDX-License-Identifier: MIT

// Package coordinator drives the rig: fan-out start/stop of recording with a
// computed common start instant, pre-flight checks, session lifecycle and
// aggregated status.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldrig/camsyncd/internal/capture"
	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
	"github.com/fieldrig/camsyncd/internal/nodeclient"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/rs/zerolog"
)

var (
	ErrSessionActive  = errors.New("coordinator: a session is already starting, recording or stopping")
	ErrNotRecording   = errors.New("coordinator: no session in recording state")
	ErrStartAborted   = errors.New("coordinator: start wait aborted")
	ErrUnknownSession = errors.New("coordinator: unknown session")
)

// Commander is the slice of the node client used for fan-out.
type Commander interface {
	Start(ctx context.Context, sessionID string, startTime time.Time) error
	Stop(ctx context.Context) error
	SelfTest(ctx context.Context) error
}

// ClientFactory builds a commander for a peer address.
type ClientFactory func(addr string) Commander

// Coordinator owns the session table. All session mutation happens under
// one lock; fan-out network calls run outside it.
type Coordinator struct {
	cfg      config.AppConfig
	registry *registry.Registry
	tracker  *clocksync.Tracker
	driver   capture.Driver
	disk     diskman.Manager
	factory  ClientFactory
	clock    clocksync.Clock
	logger   zerolog.Logger

	mu      sync.Mutex
	current *Session
	archive history
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClientFactory overrides peer client construction (for tests).
func WithClientFactory(f ClientFactory) Option {
	return func(c *Coordinator) { c.factory = f }
}

// WithClock overrides the time source (for tests).
func WithClock(clk clocksync.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// New wires a coordinator from its collaborators.
func New(cfg config.AppConfig, reg *registry.Registry, tracker *clocksync.Tracker, driver capture.Driver, disk diskman.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		registry: reg,
		tracker:  tracker,
		driver:   driver,
		disk:     disk,
		clock:    clocksync.RealClock{},
		logger:   log.WithComponent("coordinator"),
		archive:  history{max: cfg.SessionHistory},
	}
	c.factory = func(addr string) Commander {
		return nodeclient.New(addr, cfg.FanoutTimeout)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// target is one fan-out destination in canonical role order.
type target struct {
	cameraID string
	local    bool
	addr     string
}

// targets returns self plus all registered peers, sorted left, center, right.
func (c *Coordinator) targets() []target {
	byRole := map[string]target{
		c.cfg.CameraID: {cameraID: c.cfg.CameraID, local: true},
	}
	for _, p := range c.registry.Peers() {
		byRole[p.Node.CameraID] = target{cameraID: p.Node.CameraID, addr: p.Node.Address}
	}
	out := make([]target, 0, len(byRole))
	for _, role := range config.Roles {
		if t, ok := byRole[role]; ok {
			out = append(out, t)
		}
	}
	return out
}

// StartAll creates a session and fans the start command out to every node.
// requestedID may be empty; a time-derived id is generated then.
func (c *Coordinator) StartAll(ctx context.Context, requestedID string) (Session, error) {
	masterNow := c.tracker.MasterTime()
	startTime := masterNow.Add(c.cfg.StartLead)

	sessionID := requestedID
	if sessionID == "" {
		sessionID = masterNow.UTC().Format("20060102-150405")
	}

	c.mu.Lock()
	if c.current != nil && c.current.Status.Blocking() {
		c.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s is %s", ErrSessionActive, c.current.SessionID, c.current.Status)
	}
	session := &Session{
		SessionID:      sessionID,
		CreatedAt:      c.clock.Now(),
		ScheduledStart: startTime,
		Status:         StateStarting,
		NodeResults:    make(map[string]NodeResult),
	}
	c.current = session
	c.mu.Unlock()

	c.logger.Info().
		Str(log.FieldSessionID, sessionID).
		Time(log.FieldStartTime, startTime).
		Msg("starting coordinated recording")

	results := c.fanout(ctx, c.cfg.FanoutTimeout, "start", func(ctx context.Context, t target) error {
		if t.local {
			return c.startLocal(ctx, sessionID, startTime)
		}
		return c.factory(t.addr).Start(ctx, sessionID, startTime)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	session.NodeResults = results
	if allSucceeded(results) {
		session.Status = StateRecording
		session.StartedAt = startTime
		c.logger.Info().Str(log.FieldSessionID, sessionID).Msg("all nodes recording")
		return session.clone(), nil
	}

	// Nodes that did start are left recording. Stopping them is an operator
	// decision, not an automatic compensation.
	session.Status = StateFailed
	c.archive.add(session.clone())
	c.current = nil
	metrics.RecordSessionEnd(string(StateFailed))
	c.logger.Warn().
		Str(log.FieldSessionID, sessionID).
		Interface("results", results).
		Msg("start_all failed on at least one node, successful nodes keep recording")
	return session.clone(), nil
}

// StopAll stops the running session on every node and archives it.
func (c *Coordinator) StopAll(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.current == nil || c.current.Status != StateRecording {
		c.mu.Unlock()
		return Session{}, ErrNotRecording
	}
	session := c.current
	session.Status = StateStopping
	c.mu.Unlock()

	c.logger.Info().Str(log.FieldSessionID, session.SessionID).Msg("stopping coordinated recording")

	results := c.fanout(ctx, c.cfg.FanoutTimeout, "stop", func(ctx context.Context, t target) error {
		if t.local {
			return c.driver.StopRecording(ctx)
		}
		return c.factory(t.addr).Stop(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, r := range results {
		session.NodeResults[id] = r
	}
	session.StoppedAt = c.clock.Now()
	if allSucceeded(results) {
		session.Status = StateCompleted
	} else {
		session.Status = StateFailed
	}
	metrics.RecordSessionEnd(string(session.Status))

	archived := session.clone()
	c.archive.add(archived)
	c.current = nil
	return archived, nil
}

// RunTestAll fans a short self-test out to every node. Self-tests include
// real camera I/O, hence the longer join timeout.
func (c *Coordinator) RunTestAll(ctx context.Context) (bool, map[string]NodeResult) {
	results := c.fanout(ctx, c.cfg.SelfTestTimeout, "selftest", func(ctx context.Context, t target) error {
		if t.local {
			return c.driver.RunTestRecording(ctx)
		}
		return c.factory(t.addr).SelfTest(ctx)
	})
	return allSucceeded(results), results
}

// StartLocal performs the local side of a start command: wait until the
// scheduled instant (converted from master time), then hand the session to
// the capture driver. Serves both our own fan-out and remote coordinators.
func (c *Coordinator) StartLocal(ctx context.Context, sessionID string, startTime time.Time) error {
	return c.startLocal(ctx, sessionID, startTime)
}

// StopLocal stops the local capture driver.
func (c *Coordinator) StopLocal(ctx context.Context) error {
	return c.driver.StopRecording(ctx)
}

// SelfTestLocal runs the local capture self-test.
func (c *Coordinator) SelfTestLocal(ctx context.Context) error {
	return c.driver.RunTestRecording(ctx)
}

func (c *Coordinator) startLocal(ctx context.Context, sessionID string, startTime time.Time) error {
	wait := startTime.Sub(c.tracker.MasterTime())
	if wait > 0 {
		timer := c.clock.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStartAborted, ctx.Err())
		case <-timer.C():
		}
	}
	return c.driver.StartRecording(ctx, sessionID, startTime)
}

// Current returns the active session, if any.
func (c *Coordinator) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return c.current.clone(), true
}

// Session returns the active or an archived session by id.
func (c *Coordinator) Session(id string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.SessionID == id {
		return c.current.clone(), nil
	}
	for i := range c.archive.sessions {
		if c.archive.sessions[i].SessionID == id {
			return c.archive.sessions[i].clone(), nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
}

// Sessions returns the archived history, most recent first.
func (c *Coordinator) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archive.list()
}

func allSucceeded(results map[string]NodeResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return len(results) > 0
}
