// SPDX-License-Identifier: MIT

package offload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldrig/camsyncd/internal/diskman"
)

var (
	ErrServerUnavailable = errors.New("offload: central server unreachable")
	ErrServerRejected    = errors.New("offload: central server rejected the request")
)

// UploadRequest carries one recording to the central server.
type UploadRequest struct {
	FilePath string
	Manifest diskman.Manifest
	Checksum string
}

// Uploader is the central server's upload/confirm contract.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) error
	Confirm(ctx context.Context, sessionID, cameraID string) (string, error)
}

// ServerClient talks to the central server over HTTP.
type ServerClient struct {
	base string
	http *http.Client
}

// NewServerClient creates a client for the central server's base URL.
func NewServerClient(base string, timeout time.Duration) *ServerClient {
	return &ServerClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Upload performs the multipart transfer: the recording file plus
// session/camera identifiers, checksum and the manifest document.
func (c *ServerClient) Upload(ctx context.Context, req UploadRequest) error {
	file, err := os.Open(req.FilePath)
	if err != nil {
		return fmt.Errorf("offload: open %s: %w", req.FilePath, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(writer, file, req)
		if cerr := writer.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", pr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: upload HTTP %d: %s", ErrServerRejected, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var reply struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return fmt.Errorf("%w: decode upload reply: %v", ErrServerRejected, err)
	}
	if !reply.Success {
		return fmt.Errorf("%w: %s", ErrServerRejected, reply.Error)
	}
	return nil
}

func writeMultipart(writer *multipart.Writer, file *os.File, req UploadRequest) error {
	fields := map[string]string{
		"session_id": req.Manifest.SessionID,
		"camera_id":  req.Manifest.CameraID,
		"checksum":   req.Checksum,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return err
		}
	}

	manifestJSON, err := json.Marshal(req.Manifest)
	if err != nil {
		return err
	}
	if err := writer.WriteField("manifest", string(manifestJSON)); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

// Confirm asks the server for its post-upload verdict and returns the
// checksum it computed over the received file.
func (c *ServerClient) Confirm(ctx context.Context, sessionID, cameraID string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"session_id": sessionID,
		"camera_id":  cameraID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload/confirm", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("%w: confirm HTTP %d", ErrServerRejected, res.StatusCode)
	}

	var reply struct {
		Success  bool   `json:"success"`
		Checksum string `json:"checksum_sha256"`
		Error    string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("%w: decode confirm reply: %v", ErrServerRejected, err)
	}
	if !reply.Success {
		return "", fmt.Errorf("%w: %s", ErrServerRejected, reply.Error)
	}
	return reply.Checksum, nil
}

// Health checks the central server's health endpoint.
func (c *ServerClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health HTTP %d", ErrServerUnavailable, res.StatusCode)
	}
	return nil
}
