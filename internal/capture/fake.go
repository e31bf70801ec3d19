// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyRecording = errors.New("capture: already recording")
	ErrNotRecording     = errors.New("capture: not recording")
)

// Fake is a deterministic in-memory driver for tests and bench mode.
type Fake struct {
	mu sync.Mutex

	recording bool
	sessionID string
	startedAt time.Time

	// Failure injection
	StartErr    error
	StopErr     error
	SelfTestErr error

	// Reported status fields
	Detected     bool
	TemperatureC float64

	starts []string
}

// NewFake returns a healthy fake driver.
func NewFake() *Fake {
	return &Fake{Detected: true, TemperatureC: 45}
}

func (f *Fake) StartRecording(ctx context.Context, sessionID string, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.recording {
		return ErrAlreadyRecording
	}
	f.recording = true
	f.sessionID = sessionID
	f.startedAt = start
	f.starts = append(f.starts, sessionID)
	return nil
}

func (f *Fake) StopRecording(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopErr != nil {
		return f.StopErr
	}
	if !f.recording {
		return ErrNotRecording
	}
	f.recording = false
	f.sessionID = ""
	return nil
}

func (f *Fake) Status(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Detected:     f.Detected,
		Recording:    f.recording,
		SessionID:    f.sessionID,
		TemperatureC: f.TemperatureC,
	}, nil
}

func (f *Fake) RunTestRecording(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SelfTestErr
}

// Starts returns the session ids passed to StartRecording, in order.
func (f *Fake) Starts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

// StartedAt returns the scheduled instant of the current recording.
func (f *Fake) StartedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startedAt
}
