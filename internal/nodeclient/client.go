// Package nodeclient speaks the node-to-node control protocol: start/stop
// fan-out targets, status polls, self-tests and clock sync triggers.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fieldrig/camsyncd/internal/clocksync"
)

// StatusSnapshot is the status document every node serves on GET /status.
type StatusSnapshot struct {
	CameraID            string           `json:"camera_id"`
	Position            string           `json:"position,omitempty"`
	Version             string           `json:"version,omitempty"`
	Recording           bool             `json:"recording"`
	SessionID           string           `json:"session_id,omitempty"`
	CameraDetected      bool             `json:"camera_detected"`
	FreeBytes           int64            `json:"free_bytes"`
	EstMinutesRemaining float64          `json:"est_minutes_remaining"`
	TemperatureC        float64          `json:"temperature_c"`
	Clock               clocksync.Status `json:"clock"`
}

// CommandResult is the generic reply of the mutating node endpoints.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Client struct {
	base string
	http *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient substitutes the transport (shared pools, tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for one node. addr is "host:port" or a full URL.
func New(addr string, timeout time.Duration, opts ...Option) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startRequest struct {
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
}

// Start instructs the node to begin recording session sessionID at the
// scheduled instant (master time). The node performs the local wait itself.
func (c *Client) Start(ctx context.Context, sessionID string, startTime time.Time) error {
	body, _ := json.Marshal(startRequest{SessionID: sessionID, StartTime: startTime})
	return c.command(ctx, "record/start", "start", body)
}

// Stop instructs the node to stop the running recording.
func (c *Client) Stop(ctx context.Context) error {
	return c.command(ctx, "record/stop", "stop", nil)
}

// SelfTest runs the node's brief record/verify/delete cycle.
func (c *Client) SelfTest(ctx context.Context) error {
	return c.command(ctx, "selftest", "selftest", nil)
}

// Status fetches the node's status document. The raw body is returned
// alongside the decoded form so callers can cache the snapshot verbatim.
func (c *Client) Status(ctx context.Context) (StatusSnapshot, json.RawMessage, error) {
	raw, err := c.get(ctx, "status", "status")
	if err != nil {
		return StatusSnapshot{}, nil, err
	}
	var snap StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return StatusSnapshot{}, nil, &NodeError{Sentinel: ErrBadResponse, Operation: "status", Err: err}
	}
	return snap, raw, nil
}

// SyncStatus fetches the node's clock sync state.
func (c *Client) SyncStatus(ctx context.Context) (clocksync.Status, error) {
	raw, err := c.get(ctx, "sync/status", "sync-status")
	if err != nil {
		return clocksync.Status{}, err
	}
	var st clocksync.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return clocksync.Status{}, &NodeError{Sentinel: ErrBadResponse, Operation: "sync-status", Err: err}
	}
	return st, nil
}

// TriggerSync forces an immediate offset remeasurement on the node.
func (c *Client) TriggerSync(ctx context.Context) (clocksync.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/sync/trigger", nil)
	if err != nil {
		return clocksync.Status{}, &NodeError{Sentinel: ErrUnreachable, Operation: "sync-trigger", Err: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return clocksync.Status{}, transportError("sync-trigger", err)
	}
	defer res.Body.Close()

	if nodeErr := checkStatus(res, "sync-trigger"); nodeErr != nil {
		return clocksync.Status{}, nodeErr
	}
	var st clocksync.Status
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		return clocksync.Status{}, &NodeError{Sentinel: ErrBadResponse, Operation: "sync-trigger", Err: err}
	}
	return st, nil
}

func (c *Client) command(ctx context.Context, path, op string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+path, reader)
	if err != nil {
		return &NodeError{Sentinel: ErrUnreachable, Operation: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer res.Body.Close()

	if nodeErr := checkStatus(res, op); nodeErr != nil {
		return nodeErr
	}

	var result CommandResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return &NodeError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	if !result.Success {
		return &NodeError{Sentinel: ErrConflict, Operation: op, Body: result.Error}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, op string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+path, nil)
	if err != nil {
		return nil, &NodeError{Sentinel: ErrUnreachable, Operation: op, Err: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer res.Body.Close()

	if nodeErr := checkStatus(res, op); nodeErr != nil {
		return nil, nodeErr
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &NodeError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return raw, nil
}

func transportError(op string, err error) *NodeError {
	sentinel := ErrUnreachable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		sentinel = ErrTimeout
	}
	return &NodeError{Sentinel: sentinel, Operation: op, Err: err}
}

func checkStatus(res *http.Response, op string) *NodeError {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	sentinel := ErrNodeError
	if res.StatusCode == http.StatusConflict {
		sentinel = ErrConflict
	}
	return &NodeError{
		Sentinel:  sentinel,
		Operation: op,
		Status:    res.StatusCode,
		Body:      strings.TrimSpace(string(body)),
	}
}
