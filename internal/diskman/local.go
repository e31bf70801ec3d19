// SPDX-License-Identifier: MIT

package diskman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const manifestSuffix = ".manifest.json"

// Rough 4K capture rate used to estimate remaining recording time.
const defaultBytesPerMinute int64 = 900 << 20

// Local implements Manager over a spool directory with manifest sidecars.
type Local struct {
	mu             sync.Mutex
	spoolDir       string
	bytesPerMinute int64
	logger         zerolog.Logger
}

// NewLocal creates a manager over spoolDir.
func NewLocal(spoolDir string) *Local {
	return &Local{
		spoolDir:       spoolDir,
		bytesPerMinute: defaultBytesPerMinute,
		logger:         log.WithComponent("diskman"),
	}
}

// Status reports free space on the spool volume and the number of
// not-yet-offloaded recordings.
func (l *Local) Status(ctx context.Context) (Status, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(l.spoolDir, &stat); err != nil {
		return Status{}, fmt.Errorf("diskman: statfs %s: %w", l.spoolDir, err)
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)

	count := 0
	manifests, err := l.listManifests()
	if err != nil {
		return Status{}, err
	}
	for _, m := range manifests {
		if !m.Offloaded {
			count++
		}
	}

	return Status{
		FreeBytes:           free,
		RecordingCount:      count,
		EstMinutesRemaining: float64(free) / float64(l.bytesPerMinute),
	}, nil
}

// Manifest loads the sidecar for one recording.
func (l *Local) Manifest(recordingID string) (Manifest, error) {
	path := filepath.Join(l.spoolDir, recordingID+manifestSuffix)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, recordingID)
	}
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("diskman: parse %s: %w", path, err)
	}
	return m, nil
}

// MarkOffloaded flags a recording as confirmed uploaded, enabling later
// cleanup. The source file itself is never touched here.
func (l *Local) MarkOffloaded(recordingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.Manifest(recordingID)
	if err != nil {
		return err
	}
	if m.Offloaded {
		return nil
	}
	m.Offloaded = true

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(l.spoolDir, recordingID+manifestSuffix)
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending manifest: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			l.logger.Debug().Err(err).Msg("cleanup pending manifest")
		}
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace manifest: %w", err)
	}

	l.logger.Info().Str(log.FieldRecordingID, recordingID).Msg("recording marked offloaded")
	return nil
}

// WriteManifest creates or replaces a sidecar. Used by bench tooling and
// tests; in production the capture pipeline writes manifests.
func (l *Local) WriteManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(l.spoolDir, m.RecordingID+manifestSuffix)
	return os.WriteFile(path, data, 0o600)
}

func (l *Local) listManifests() ([]Manifest, error) {
	entries, err := os.ReadDir(l.spoolDir)
	if err != nil {
		return nil, fmt.Errorf("diskman: read spool: %w", err)
	}
	out := make([]Manifest, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestSuffix) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), manifestSuffix)
		m, err := l.Manifest(id)
		if err != nil {
			l.logger.Warn().Err(err).Str(log.FieldPath, e.Name()).Msg("skipping unreadable manifest")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
