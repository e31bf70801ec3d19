// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldrig/camsyncd/internal/capture"
	"github.com/fieldrig/camsyncd/internal/coordinator"
	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/offload"
	"github.com/fieldrig/camsyncd/internal/registry"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrSessionActive),
		errors.Is(err, coordinator.ErrNotRecording),
		errors.Is(err, capture.ErrAlreadyRecording),
		errors.Is(err, capture.ErrNotRecording),
		errors.Is(err, offload.ErrAlreadyQueued),
		errors.Is(err, offload.ErrAlreadyOffloaded):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrUnknownSession),
		errors.Is(err, registry.ErrPeerNotFound),
		errors.Is(err, offload.ErrJobNotFound),
		errors.Is(err, diskman.ErrManifestNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrUnknownRole),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
