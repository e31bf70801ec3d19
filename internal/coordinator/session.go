// SPDX-License-Identifier: MIT

package coordinator

import (
	"time"
)

// SessionState is the recording session state machine.
//
//	created -> starting -> recording -> stopping -> completed
//	                \                      \
//	                 +-------> failed <-----+
type SessionState string

const (
	StateCreated   SessionState = "created"
	StateStarting  SessionState = "starting"
	StateRecording SessionState = "recording"
	StateStopping  SessionState = "stopping"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
)

// Blocking reports whether a session in this state excludes a new start_all.
func (s SessionState) Blocking() bool {
	switch s {
	case StateStarting, StateRecording, StateStopping:
		return true
	default:
		return false
	}
}

// NodeResult is one node's structured outcome of a fan-out operation.
type NodeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Session tracks one coordinated multi-node recording attempt.
type Session struct {
	SessionID      string                `json:"session_id"`
	CreatedAt      time.Time             `json:"created_at"`
	ScheduledStart time.Time             `json:"scheduled_start,omitzero"`
	StartedAt      time.Time             `json:"started_at,omitzero"`
	StoppedAt      time.Time             `json:"stopped_at,omitzero"`
	Status         SessionState          `json:"status"`
	NodeResults    map[string]NodeResult `json:"per_node_results,omitempty"`
}

func (s *Session) clone() Session {
	out := *s
	if s.NodeResults != nil {
		out.NodeResults = make(map[string]NodeResult, len(s.NodeResults))
		for k, v := range s.NodeResults {
			out.NodeResults[k] = v
		}
	}
	return out
}

// history is a bounded ring of archived sessions, most recent first.
// Archived sessions are never mutated again.
type history struct {
	max      int
	sessions []Session
}

func (h *history) add(s Session) {
	h.sessions = append([]Session{s}, h.sessions...)
	if len(h.sessions) > h.max {
		h.sessions = h.sessions[:h.max]
	}
}

func (h *history) list() []Session {
	return append([]Session(nil), h.sessions...)
}
