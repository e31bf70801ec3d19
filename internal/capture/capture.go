// SPDX-License-Identifier: MIT

// Package capture defines the boundary to the physical camera
// capture/encoding driver. The driver itself lives outside this repository;
// the coordinator only depends on this interface.
package capture

import (
	"context"
	"time"
)

// Status is the driver's self-reported state.
type Status struct {
	Detected     bool    `json:"detected"`
	Recording    bool    `json:"recording"`
	SessionID    string  `json:"session_id,omitempty"`
	TemperatureC float64 `json:"temperature_c"`
}

// Driver is the capture driver contract. StartRecording receives the
// scheduled instant in master time and is expected to begin as close to it
// as the hardware allows; the caller has already performed the local wait.
type Driver interface {
	StartRecording(ctx context.Context, sessionID string, start time.Time) error
	StopRecording(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	RunTestRecording(ctx context.Context) error
}
