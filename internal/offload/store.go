// SPDX-License-Identifier: MIT

package offload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/google/renameio/v2"
)

// jobTable is the on-disk shape of offload_jobs.json.
type jobTable struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

const jobTableVersion = 1

// saveLocked writes the job table atomically. Callers hold p.mu. A write
// failure is logged and swallowed: the in-memory table stays authoritative
// and the next transition retries the write.
func (p *Pipeline) saveLocked() {
	table := jobTable{Version: jobTableVersion, Jobs: make([]Job, 0, len(p.jobs))}
	for _, j := range p.jobs {
		table.Jobs = append(table.Jobs, *j)
	}
	sort.Slice(table.Jobs, func(i, k int) bool {
		return table.Jobs[i].EnqueuedAt.Before(table.Jobs[k].EnqueuedAt)
	})

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		p.logger.Error().Err(err).Msg("marshal job table failed")
		return
	}
	if err := renameio.WriteFile(p.dataPath, data, 0o644); err != nil {
		p.logger.Error().Err(err).Str("path", p.dataPath).Msg("persist job table failed")
	}
}

// Load restores the job table from disk. Jobs caught mid-flight by a crash
// (uploading or confirming) go back to pending with their attempt count
// kept, and pending jobs rejoin the queue oldest first.
func (p *Pipeline) Load() error {
	data, err := os.ReadFile(p.dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("offload: read job table: %w", err)
	}

	var table jobTable
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("offload: parse job table %s: %w", p.dataPath, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	resumed := 0
	for i := range table.Jobs {
		job := table.Jobs[i]
		if job.Status == StatusUploading || job.Status == StatusConfirming {
			job.Status = StatusPending
			resumed++
		}
		p.jobs[job.ID] = &job
		// The table is saved oldest first, so the newest job for a
		// recording ends up as its active one.
		p.active[job.RecordingID] = job.ID
	}
	for i := range table.Jobs {
		job := p.jobs[table.Jobs[i].ID]
		if job.Status == StatusPending && p.active[job.RecordingID] == job.ID {
			p.queue = append(p.queue, job.RecordingID)
		}
	}
	p.publishLocked()

	p.logger.Info().
		Int("jobs", len(table.Jobs)).
		Int("resumed", resumed).
		Str("path", p.dataPath).
		Msg("job table loaded")
	return nil
}
