// SPDX-License-Identifier: MIT

// Package offload drains finished recordings to the central server with
// checksum verification and bounded retries. One worker processes the queue
// sequentially: uploads are large and bandwidth-bound, serialising them
// keeps the uplink usable.
package offload

import "time"

// JobStatus is the offload job lifecycle.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusUploading  JobStatus = "uploading"
	StatusConfirming JobStatus = "confirming"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the worker is done with a job in this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one recording's upload-and-confirm lifecycle. Jobs are never
// deleted, only terminally marked, so operators can inspect what happened.
type Job struct {
	ID          string    `json:"id"`
	RecordingID string    `json:"recording_id"`
	SessionID   string    `json:"session_id"`
	CameraID    string    `json:"camera_id"`
	FilePath    string    `json:"file_path"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

func (j *Job) clone() Job { return *j }
