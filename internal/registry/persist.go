// SPDX-License-Identifier: MIT

package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/google/renameio/v2"
)

// Only node identities are persisted. Liveness state is runtime-only and
// rebuilt by the monitor after a restart.
func (r *Registry) saveLocked() error {
	nodes := make([]Node, 0, len(r.peers))
	for _, role := range config.Roles {
		if e, ok := r.peers[role]; ok {
			nodes = append(nodes, e.node)
		}
	}

	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return err
	}

	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pending, err := renameio.NewPendingFile(r.dataPath)
	if err != nil {
		return fmt.Errorf("create pending peers file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			r.logger.Debug().Err(err).Msg("cleanup pending peers file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write peers data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace peers file: %w", err)
	}
	return nil
}

// Load restores persisted peers. A missing file is not an error.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.dataPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.dataPath, err)
	}

	r.peers = make(map[string]*entry, len(nodes))
	for _, n := range nodes {
		if !validRole(n.CameraID) {
			r.logger.Warn().Str("camera_id", n.CameraID).Msg("skipping persisted peer with unknown role")
			continue
		}
		r.peers[n.CameraID] = &entry{node: n, status: StatusUnknown}
	}
	r.publishCountsLocked()
	return nil
}

// Seed merges manually configured peers from the config file. Seeds take
// manual precedence but do not clobber an existing manual entry whose
// address an operator already corrected at runtime.
func (r *Registry) Seed(seeds []config.PeerSeed) error {
	for _, s := range seeds {
		if _, exists := r.Get(s.CameraID); exists {
			continue
		}
		node := Node{
			CameraID: s.CameraID,
			Address:  s.Address,
			Position: s.Position,
		}
		if err := r.AddPeer(node); err != nil {
			return err
		}
	}
	return nil
}
