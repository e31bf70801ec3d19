// SPDX-License-Identifier: MIT

// Package registry tracks the sibling camera nodes of this rig: identity,
// address, how the entry got here (operator vs. discovery) and the liveness
// state maintained by the monitor.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	ErrPeerNotFound = errors.New("registry: peer not found")
	ErrUnknownRole  = errors.New("registry: camera_id is not a known role")
)

// PeerStatus is the liveness classification of a peer.
type PeerStatus string

const (
	StatusUnknown   PeerStatus = "unknown"
	StatusOnline    PeerStatus = "online"
	StatusOffline   PeerStatus = "offline"
	StatusRecording PeerStatus = "recording"
	StatusError     PeerStatus = "error"
)

// Node identifies one camera node. Identity (camera_id) is stable;
// the address may change on rediscovery.
type Node struct {
	CameraID           string `json:"camera_id"`
	Address            string `json:"address"`
	Position           string `json:"position,omitempty"`
	ManuallyConfigured bool   `json:"manually_configured"`
}

// PeerState couples a node with its monitored liveness state.
type PeerState struct {
	Node         Node            `json:"node"`
	Status       PeerStatus      `json:"status"`
	LastSeen     time.Time       `json:"last_seen,omitzero"`
	LastSnapshot json.RawMessage `json:"last_snapshot,omitempty"`
}

type entry struct {
	node         Node
	status       PeerStatus
	lastSeen     time.Time
	lastSnapshot json.RawMessage
}

// Registry is the single mutable peer table, guarded by one lock.
// Liveness fields are mutated only by the monitor; nodes only by operator
// calls and discovery.
type Registry struct {
	mu       sync.Mutex
	peers    map[string]*entry
	dataPath string
	logger   zerolog.Logger
}

// New creates an empty registry persisting to dataDir/peers.json.
func New(dataDir string) *Registry {
	return &Registry{
		peers:    make(map[string]*entry),
		dataPath: filepath.Join(dataDir, "peers.json"),
		logger:   log.WithComponent("registry"),
	}
}

func validRole(cameraID string) bool {
	for _, r := range config.Roles {
		if r == cameraID {
			return true
		}
	}
	return false
}

// AddPeer inserts or replaces a manually configured peer entry.
func (r *Registry) AddPeer(node Node) error {
	if !validRole(node.CameraID) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, node.CameraID)
	}
	node.ManuallyConfigured = true

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.peers[node.CameraID]
	next := &entry{node: node, status: StatusUnknown}
	if existed {
		// Keep liveness state across an address update.
		next.status = prev.status
		next.lastSeen = prev.lastSeen
		next.lastSnapshot = prev.lastSnapshot
	}
	r.peers[node.CameraID] = next

	if err := r.saveLocked(); err != nil {
		if existed {
			r.peers[node.CameraID] = prev
		} else {
			delete(r.peers, node.CameraID)
		}
		return fmt.Errorf("registry: save after add: %w", err)
	}
	r.publishCountsLocked()
	r.logger.Info().
		Str(log.FieldCameraID, node.CameraID).
		Str("address", node.Address).
		Msg("peer added")
	return nil
}

// UpdateFromDiscovery inserts or updates a discovered peer. It is a no-op
// for camera_ids whose current entry is manually configured.
func (r *Registry) UpdateFromDiscovery(node Node) (bool, error) {
	if !validRole(node.CameraID) {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, node.CameraID)
	}
	node.ManuallyConfigured = false

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.peers[node.CameraID]
	if existed && prev.node.ManuallyConfigured {
		return false, nil
	}

	next := &entry{node: node, status: StatusUnknown}
	if existed {
		next.status = prev.status
		next.lastSeen = prev.lastSeen
		next.lastSnapshot = prev.lastSnapshot
	}
	r.peers[node.CameraID] = next

	if err := r.saveLocked(); err != nil {
		if existed {
			r.peers[node.CameraID] = prev
		} else {
			delete(r.peers, node.CameraID)
		}
		return false, fmt.Errorf("registry: save after discovery update: %w", err)
	}
	r.publishCountsLocked()
	return true, nil
}

// RemovePeer deletes a peer and its liveness state.
func (r *Registry) RemovePeer(cameraID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.peers[cameraID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, cameraID)
	}
	delete(r.peers, cameraID)

	if err := r.saveLocked(); err != nil {
		r.peers[cameraID] = prev
		return fmt.Errorf("registry: save after remove: %w", err)
	}
	r.publishCountsLocked()
	r.logger.Info().Str(log.FieldCameraID, cameraID).Msg("peer removed")
	return nil
}

// Get returns the state of one peer.
func (r *Registry) Get(cameraID string) (PeerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[cameraID]
	if !ok {
		return PeerState{}, false
	}
	return e.state(), true
}

// Peers returns all peers in canonical role order (left, center, right).
func (r *Registry) Peers() []PeerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PeerState, 0, len(r.peers))
	for _, role := range config.Roles {
		if e, ok := r.peers[role]; ok {
			out = append(out, e.state())
		}
	}
	return out
}

// SetLiveness records a poll result for a peer. Called only by the
// liveness monitor. Unknown peers are ignored: a poll may race an explicit
// removal.
func (r *Registry) SetLiveness(cameraID string, status PeerStatus, snapshot json.RawMessage, seenAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.peers[cameraID]
	if !ok {
		return
	}
	e.status = status
	if status != StatusOffline && status != StatusError {
		e.lastSeen = seenAt
	}
	if snapshot != nil {
		e.lastSnapshot = snapshot
	}
	r.publishCountsLocked()
}

func (e *entry) state() PeerState {
	return PeerState{
		Node:         e.node,
		Status:       e.status,
		LastSeen:     e.lastSeen,
		LastSnapshot: e.lastSnapshot,
	}
}

func (r *Registry) publishCountsLocked() {
	online := 0
	for _, e := range r.peers {
		if e.status == StatusOnline || e.status == StatusRecording {
			online++
		}
	}
	metrics.SetPeerCounts(len(r.peers), online)
}
