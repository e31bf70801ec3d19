// SPDX-License-Identifier: MIT

package offload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manifest sidecar naming shared with the spool layout.
const manifestFileSuffix = ".manifest.json"

// Watcher auto-enqueues recordings as their manifest sidecars appear in
// the spool directory. Capture writes the media file first and the
// manifest last, so a manifest is the signal that a recording is complete;
// the settle window absorbs editors and copies that write in bursts.
type Watcher struct {
	spoolDir string
	settle   time.Duration
	pipeline *Pipeline
	logger   zerolog.Logger
}

// NewWatcher creates a spool watcher feeding the pipeline.
func NewWatcher(spoolDir string, settle time.Duration, pipeline *Pipeline) *Watcher {
	if settle <= 0 {
		settle = time.Second
	}
	return &Watcher{
		spoolDir: spoolDir,
		settle:   settle,
		pipeline: pipeline,
		logger:   log.WithComponent("spoolwatch"),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spoolwatch: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.spoolDir); err != nil {
		return fmt.Errorf("spoolwatch: watch %s: %w", w.spoolDir, err)
	}
	w.logger.Info().Str(log.FieldPath, w.spoolDir).Msg("watching spool for finished recordings")

	// recording id -> settle deadline
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, manifestFileSuffix) {
				continue
			}
			id := strings.TrimSuffix(name, manifestFileSuffix)
			pending[id] = time.Now().Add(w.settle)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("spool watch error")

		case now := <-ticker.C:
			for id, deadline := range pending {
				if now.Before(deadline) {
					continue
				}
				delete(pending, id)
				w.enqueue(id)
			}
		}
	}
}

func (w *Watcher) enqueue(recordingID string) {
	_, err := w.pipeline.Enqueue(recordingID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyQueued), errors.Is(err, ErrAlreadyOffloaded):
		// Manifest rewrites (MarkOffloaded included) retrigger the watch.
	default:
		w.logger.Warn().Err(err).Str(log.FieldRecordingID, recordingID).Msg("auto-enqueue failed")
	}
}
