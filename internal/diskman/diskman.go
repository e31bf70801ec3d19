// SPDX-License-Identifier: MIT

// Package diskman is the boundary to the local disk/manifest manager.
// Finished recordings live in a spool directory with a JSON manifest
// sidecar per file.
package diskman

import (
	"context"
	"errors"
	"time"
)

var ErrManifestNotFound = errors.New("diskman: manifest not found")

// Status summarises local recording storage.
type Status struct {
	FreeBytes           int64   `json:"free_bytes"`
	RecordingCount      int     `json:"recording_count"`
	EstMinutesRemaining float64 `json:"est_minutes_remaining"`
}

// Manifest describes one finished recording.
type Manifest struct {
	RecordingID    string    `json:"recording_id"`
	SessionID      string    `json:"session_id"`
	CameraID       string    `json:"camera_id"`
	FilePath       string    `json:"file_path"`
	SizeBytes      int64     `json:"size_bytes"`
	ChecksumSHA256 string    `json:"checksum_sha256,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Offloaded      bool      `json:"offloaded"`
}

// Manager is the disk/manifest manager contract.
type Manager interface {
	Status(ctx context.Context) (Status, error)
	Manifest(recordingID string) (Manifest, error)
	MarkOffloaded(recordingID string) error
}
