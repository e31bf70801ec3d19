// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fieldrig/camsyncd/internal/nodeclient"
	"github.com/fieldrig/camsyncd/internal/registry"
)

// NodeOverview is one node's slot in the aggregated dashboard view.
type NodeOverview struct {
	CameraID string                     `json:"camera_id"`
	Self     bool                       `json:"self,omitempty"`
	Online   bool                       `json:"online"`
	LastSeen time.Time                  `json:"last_seen,omitzero"`
	Status   *nodeclient.StatusSnapshot `json:"status,omitempty"`
}

// Summary condenses the rig state into dashboard numbers.
type Summary struct {
	OnlineCount         int     `json:"online_count"`
	TotalCount          int     `json:"total_count"`
	AnyRecording        bool    `json:"any_recording"`
	AllSynced           bool    `json:"all_synced"`
	TotalFreeBytes      int64   `json:"total_free_bytes"`
	AvgMinutesRemaining float64 `json:"avg_minutes_remaining"`
}

// AggregatedStatus merges self-status with the cached peer snapshots.
type AggregatedStatus struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Summary     Summary        `json:"summary"`
	Nodes       []NodeOverview `json:"nodes"`
}

// SelfStatus assembles this node's status document from the local
// collaborators. Collaborator errors degrade the snapshot rather than fail
// it: a dead capture driver is exactly what the caller needs to see.
func (c *Coordinator) SelfStatus(ctx context.Context) nodeclient.StatusSnapshot {
	snap := nodeclient.StatusSnapshot{
		CameraID: c.cfg.CameraID,
		Position: c.cfg.Position,
		Version:  c.cfg.Version,
		Clock:    c.tracker.Status(),
	}

	if cam, err := c.driver.Status(ctx); err == nil {
		snap.CameraDetected = cam.Detected
		snap.Recording = cam.Recording
		snap.SessionID = cam.SessionID
		snap.TemperatureC = cam.TemperatureC
	}
	if disk, err := c.disk.Status(ctx); err == nil {
		snap.FreeBytes = disk.FreeBytes
		snap.EstMinutesRemaining = disk.EstMinutesRemaining
	}
	return snap
}

// AggregatedStatus builds the dashboard view: per-node detail plus summary.
// Peer data comes from the liveness monitor's cached snapshots; no network
// calls happen here.
func (c *Coordinator) AggregatedStatus(ctx context.Context) AggregatedStatus {
	out := AggregatedStatus{GeneratedAt: c.clock.Now()}

	self := c.SelfStatus(ctx)
	out.Nodes = append(out.Nodes, NodeOverview{
		CameraID: c.cfg.CameraID,
		Self:     true,
		Online:   true,
		LastSeen: out.GeneratedAt,
		Status:   &self,
	})

	for _, p := range c.registry.Peers() {
		overview := NodeOverview{
			CameraID: p.Node.CameraID,
			Online:   p.Status == registry.StatusOnline || p.Status == registry.StatusRecording,
			LastSeen: p.LastSeen,
		}
		if len(p.LastSnapshot) > 0 {
			var snap nodeclient.StatusSnapshot
			if err := json.Unmarshal(p.LastSnapshot, &snap); err == nil {
				overview.Status = &snap
			}
		}
		out.Nodes = append(out.Nodes, overview)
	}

	out.Summary = summarise(out.Nodes)
	return out
}

func summarise(nodes []NodeOverview) Summary {
	s := Summary{TotalCount: len(nodes), AllSynced: true}
	minutes := 0.0
	withMinutes := 0

	for _, n := range nodes {
		if !n.Online {
			s.AllSynced = false
			continue
		}
		s.OnlineCount++
		if n.Status == nil {
			s.AllSynced = false
			continue
		}
		if n.Status.Recording {
			s.AnyRecording = true
		}
		if !n.Status.Clock.WithinTolerance {
			s.AllSynced = false
		}
		s.TotalFreeBytes += n.Status.FreeBytes
		minutes += n.Status.EstMinutesRemaining
		withMinutes++
	}

	if withMinutes > 0 {
		s.AvgMinutesRemaining = minutes / float64(withMinutes)
	}
	if s.OnlineCount == 0 {
		s.AllSynced = false
	}
	return s
}
