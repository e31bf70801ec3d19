// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/fieldrig/camsyncd/internal/coordinator"
	"github.com/fieldrig/camsyncd/internal/offload"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handlePeersList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"peers": s.reg.Peers()})
}

type peerAddRequest struct {
	CameraID string `json:"camera_id"`
	Address  string `json:"address"`
	Position string `json:"position,omitempty"`
}

func (s *Server) handlePeerAdd(w http.ResponseWriter, r *http.Request) {
	var req peerAddRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Address == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "address is required"})
		return
	}

	node := registry.Node{CameraID: req.CameraID, Address: req.Address, Position: req.Position}
	if err := s.reg.AddPeer(node); err != nil {
		writeError(w, err)
		return
	}

	state, _ := s.reg.Get(req.CameraID)
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handlePeerRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.RemovePeer(chi.URLParam(r, "cameraID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startAllRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// handleStartAll runs the coordinated start. A session that ends up failed
// is still a 200: the caller gets the per-node results and decides what to
// do with the nodes that did start.
func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	var req startAllRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	session, err := s.coord.StartAll(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	session, err := s.coord.StopAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type selfTestAllResponse struct {
	Passed  bool                              `json:"passed"`
	Results map[string]coordinator.NodeResult `json:"results"`
}

func (s *Server) handleSelfTestAll(w http.ResponseWriter, r *http.Request) {
	passed, results := s.coord.RunTestAll(r.Context())
	writeJSON(w, http.StatusOK, selfTestAllResponse{Passed: passed, Results: results})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.RunPreflight(r.Context()))
}

func (s *Server) handleAggregateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.AggregatedStatus(r.Context()))
}

type sessionsResponse struct {
	Current *coordinator.Session  `json:"current,omitempty"`
	History []coordinator.Session `json:"history"`
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	resp := sessionsResponse{History: s.coord.Sessions()}
	if current, ok := s.coord.Current(); ok {
		resp.Current = &current
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	session, err := s.coord.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleOffloadJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]offload.Job{"jobs": s.pipeline.Jobs()})
}

type uploadNowRequest struct {
	RecordingID string `json:"recording_id"`
}

func (s *Server) handleUploadNow(w http.ResponseWriter, r *http.Request) {
	var req uploadNowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RecordingID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "recording_id is required"})
		return
	}

	job, err := s.pipeline.UploadNow(r.Context(), req.RecordingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
