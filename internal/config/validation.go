// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidCameraID = errors.New("config: camera_id must be one of left, center, right")
	ErrInvalidMaster   = errors.New("config: master_role must be one of left, center, right")
	ErrDuplicatePeer   = errors.New("config: duplicate peer camera_id")
	ErrSelfPeer        = errors.New("config: peer list must not contain this node's camera_id")
	ErrBadThreshold    = errors.New("config: threshold must be positive")
)

// Validate checks the resolved configuration for structural errors.
func Validate(cfg AppConfig) error {
	if !slices.Contains(Roles, cfg.CameraID) {
		return fmt.Errorf("%w: %q", ErrInvalidCameraID, cfg.CameraID)
	}
	if !slices.Contains(Roles, cfg.MasterRole) {
		return fmt.Errorf("%w: %q", ErrInvalidMaster, cfg.MasterRole)
	}

	seen := make(map[string]struct{}, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if !slices.Contains(Roles, p.CameraID) {
			return fmt.Errorf("%w: peer %q", ErrInvalidCameraID, p.CameraID)
		}
		if p.CameraID == cfg.CameraID {
			return fmt.Errorf("%w: %q", ErrSelfPeer, p.CameraID)
		}
		if _, dup := seen[p.CameraID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePeer, p.CameraID)
		}
		seen[p.CameraID] = struct{}{}
		if p.Address == "" {
			return fmt.Errorf("config: peer %q has empty address", p.CameraID)
		}
	}

	if cfg.MaxOffsetMS <= 0 {
		return fmt.Errorf("%w: max_offset_ms=%v", ErrBadThreshold, cfg.MaxOffsetMS)
	}
	if cfg.MinFreeBytes <= 0 {
		return fmt.Errorf("%w: min_free_bytes=%d", ErrBadThreshold, cfg.MinFreeBytes)
	}
	if cfg.MaxTempC <= 0 {
		return fmt.Errorf("%w: max_temp_c=%v", ErrBadThreshold, cfg.MaxTempC)
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries=%d", ErrBadThreshold, cfg.MaxRetries)
	}
	if cfg.StartLead <= 0 || cfg.FanoutTimeout <= 0 || cfg.LivenessInterval <= 0 {
		return fmt.Errorf("%w: lead/timeout/interval must be positive", ErrBadThreshold)
	}
	if cfg.SessionHistory < 1 {
		return fmt.Errorf("%w: session_history=%d", ErrBadThreshold, cfg.SessionHistory)
	}
	return nil
}
