// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/nodeclient"
)

type startRequest struct {
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
}

// handleRecordStart schedules the local recording start. The handler
// blocks through the local wait so the coordinator's fan-out learns the
// true outcome, not just the acceptance.
func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "session_id is required"})
		return
	}

	ctx := log.ContextWithSessionID(r.Context(), req.SessionID)
	if err := s.coord.StartLocal(ctx, req.SessionID, req.StartTime); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeclient.CommandResult{Success: true})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.StopLocal(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeclient.CommandResult{Success: true})
}

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.SelfTestLocal(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeclient.CommandResult{Success: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.SelfStatus(r.Context()))
}

// handleSyncProbe answers time probes. Followers answer too, with their
// master-time estimate, so diagnostic probes against any node work.
func (s *Server) handleSyncProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clocksync.ProbeReply{Time: s.tracker.MasterTime()})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.ForceSync(r.Context()))
}
