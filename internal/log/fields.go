// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"
	FieldCameraID    = "camera_id"
	FieldRecordingID = "recording_id"
	FieldPeer        = "peer"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"

	// Clock fields
	FieldOffsetMS   = "offset_ms"
	FieldConfidence = "confidence"
	FieldStartTime  = "start_time"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
