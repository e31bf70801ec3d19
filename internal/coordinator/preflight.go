// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/fieldrig/camsyncd/internal/nodeclient"
	"github.com/fieldrig/camsyncd/internal/registry"
)

// Check is one named readiness criterion for one node.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// NodePreflight is the ordered check set for one node, ANDed.
type NodePreflight struct {
	CameraID string  `json:"camera_id"`
	Passed   bool    `json:"passed"`
	Checks   []Check `json:"checks"`
}

// PreflightResult is the rig-wide readiness evaluation. It is ephemeral:
// computed on demand, never persisted, and never enforced by StartAll.
type PreflightResult struct {
	Passed       bool            `json:"passed"`
	CheckedAt    time.Time       `json:"checked_at"`
	MissingRoles []string        `json:"missing_roles,omitempty"`
	Nodes        []NodePreflight `json:"nodes"`
}

// RunPreflight evaluates the fixed check set for every known node plus
// role completeness of the rig. Peers are judged on their cached status
// snapshot; the self node on live collaborator reads.
func (c *Coordinator) RunPreflight(ctx context.Context) PreflightResult {
	result := PreflightResult{
		Passed:    true,
		CheckedAt: c.clock.Now(),
	}

	present := map[string]bool{c.cfg.CameraID: true}

	self := c.SelfStatus(ctx)
	selfNode := evaluateNode(c.cfg.CameraID, self, true, c.cfg)
	nodes := map[string]NodePreflight{c.cfg.CameraID: selfNode}

	for _, p := range c.registry.Peers() {
		present[p.Node.CameraID] = true
		nodes[p.Node.CameraID] = evaluatePeer(p, c.cfg)
	}

	for _, role := range config.Roles {
		if node, ok := nodes[role]; ok {
			result.Nodes = append(result.Nodes, node)
			if !node.Passed {
				result.Passed = false
			}
		}
		if !present[role] {
			result.MissingRoles = append(result.MissingRoles, role)
			result.Passed = false
		}
	}
	return result
}

func evaluatePeer(p registry.PeerState, cfg config.AppConfig) NodePreflight {
	reachable := p.Status == registry.StatusOnline || p.Status == registry.StatusRecording

	var snap nodeclient.StatusSnapshot
	haveSnap := false
	if len(p.LastSnapshot) > 0 {
		if err := json.Unmarshal(p.LastSnapshot, &snap); err == nil {
			haveSnap = true
		}
	}

	if !haveSnap {
		node := NodePreflight{CameraID: p.Node.CameraID}
		node.Checks = []Check{{Name: "reachable", Passed: reachable}}
		for _, name := range []string{"camera_detected", "clock_within_tolerance", "storage_free", "temperature"} {
			node.Checks = append(node.Checks, Check{Name: name, Detail: "no status snapshot"})
		}
		return node
	}
	return evaluateNode(p.Node.CameraID, snap, reachable, cfg)
}

// evaluateNode applies the fixed ordered check set to one node's snapshot.
func evaluateNode(cameraID string, snap nodeclient.StatusSnapshot, reachable bool, cfg config.AppConfig) NodePreflight {
	checks := []Check{
		{Name: "reachable", Passed: reachable},
		{Name: "camera_detected", Passed: snap.CameraDetected},
		{
			Name:   "clock_within_tolerance",
			Passed: snap.Clock.WithinTolerance,
			Detail: fmt.Sprintf("offset %.2fms (%s)", snap.Clock.OffsetMS, snap.Clock.Confidence),
		},
		{
			Name:   "storage_free",
			Passed: snap.FreeBytes >= cfg.MinFreeBytes,
			Detail: fmt.Sprintf("%d bytes free, minimum %d", snap.FreeBytes, cfg.MinFreeBytes),
		},
		{
			Name:   "temperature",
			Passed: snap.TemperatureC < cfg.MaxTempC,
			Detail: fmt.Sprintf("%.1f°C, limit %.1f°C", snap.TemperatureC, cfg.MaxTempC),
		},
	}

	node := NodePreflight{CameraID: cameraID, Passed: true, Checks: checks}
	for _, ch := range checks {
		if !ch.Passed {
			node.Passed = false
		}
	}
	return node
}
