// SPDX-License-Identifier: MIT

package offload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrJobNotFound      = errors.New("offload: job not found")
	ErrAlreadyQueued    = errors.New("offload: recording already queued")
	ErrAlreadyOffloaded = errors.New("offload: recording already offloaded")
	ErrFileMissing      = errors.New("offload: source file missing")
	ErrChecksumMismatch = errors.New("offload: server checksum does not match local checksum")
)

// Pipeline owns the job table and the FIFO queue. Queue and table share
// one lock, and a job is claimed (moved to uploading) under that lock
// before anyone processes it, so the worker and the synchronous path can
// never run the same job twice. Terminal records are kept: superseding a
// failed job leaves the old record in the table for inspection.
type Pipeline struct {
	mu     sync.Mutex
	jobs   map[string]*Job   // keyed by job id, terminal records included
	active map[string]string // recording id -> its current job id
	queue  []string          // recording ids, FIFO

	disk     diskman.Manager
	uploader Uploader

	maxRetries int
	baseDelay  time.Duration
	dataPath   string

	wake   chan struct{}
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSleeper overrides retry sleeping (for tests).
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// New creates a pipeline persisting its job table to dataDir/offload_jobs.json.
func New(disk diskman.Manager, uploader Uploader, dataDir string, maxRetries int, baseDelay time.Duration, opts ...Option) *Pipeline {
	p := &Pipeline{
		jobs:       make(map[string]*Job),
		active:     make(map[string]string),
		disk:       disk,
		uploader:   uploader,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		dataPath:   filepath.Join(dataDir, "offload_jobs.json"),
		wake:       make(chan struct{}, 1),
		sleep:      realSleep,
		logger:     log.WithComponent("offload"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enqueue queues a finished recording for upload. A recording with a live
// (non-terminal) job is not queued twice; a failed job is superseded by a
// fresh one so operators can retry.
func (p *Pipeline) Enqueue(recordingID string) (Job, error) {
	manifest, err := p.disk.Manifest(recordingID)
	if err != nil {
		return Job{}, err
	}
	if manifest.Offloaded {
		return Job{}, fmt.Errorf("%w: %s", ErrAlreadyOffloaded, recordingID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.activeLocked(recordingID); ok {
		switch existing.Status {
		case StatusFailed:
			// The failed record stays in the table; a fresh job takes over
			// as the recording's active one.
			p.logger.Info().
				Str(log.FieldRecordingID, recordingID).
				Str(log.FieldJobID, existing.ID).
				Msg("re-queueing previously failed recording")
		case StatusCompleted:
			return Job{}, fmt.Errorf("%w: %s", ErrAlreadyOffloaded, recordingID)
		default:
			return Job{}, fmt.Errorf("%w: %s", ErrAlreadyQueued, recordingID)
		}
	}

	job := &Job{
		ID:          uuid.New().String(),
		RecordingID: recordingID,
		SessionID:   manifest.SessionID,
		CameraID:    manifest.CameraID,
		FilePath:    manifest.FilePath,
		Status:      StatusPending,
		EnqueuedAt:  time.Now(),
	}
	p.jobs[job.ID] = job
	p.active[recordingID] = job.ID
	p.queue = append(p.queue, recordingID)
	p.saveLocked()
	p.publishLocked()

	select {
	case p.wake <- struct{}{}:
	default:
	}

	p.logger.Info().
		Str(log.FieldJobID, job.ID).
		Str(log.FieldRecordingID, recordingID).
		Msg("recording queued for offload")
	return job.clone(), nil
}

// UploadNow processes one recording synchronously, bypassing the queue.
func (p *Pipeline) UploadNow(ctx context.Context, recordingID string) (Job, error) {
	if _, err := p.Enqueue(recordingID); err != nil && !errors.Is(err, ErrAlreadyQueued) {
		return Job{}, err
	}

	p.mu.Lock()
	job, ok := p.activeLocked(recordingID)
	if !ok {
		p.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, recordingID)
	}
	if job.Status != StatusPending {
		// Someone else claimed it; report the live state instead of
		// processing the same job twice.
		state := job.clone()
		p.mu.Unlock()
		return state, nil
	}
	p.removeFromQueueLocked(recordingID)
	p.claimLocked(job)
	p.mu.Unlock()

	p.process(ctx, job)
	return p.Job(recordingID)
}

// Job returns the active job for a recording id.
func (p *Pipeline) Job(recordingID string) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.activeLocked(recordingID)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, recordingID)
	}
	return job.clone(), nil
}

// activeLocked resolves a recording id to its current job.
func (p *Pipeline) activeLocked(recordingID string) (*Job, bool) {
	id, ok := p.active[recordingID]
	if !ok {
		return nil, false
	}
	job, ok := p.jobs[id]
	return job, ok
}

// claimLocked takes ownership of a pending job by moving it to uploading
// before the lock is released. Whoever claims it is the only processor.
func (p *Pipeline) claimLocked(job *Job) {
	job.Status = StatusUploading
	job.StartedAt = time.Now()
	p.saveLocked()
	p.publishLocked()
}

// Jobs returns the whole table, superseded records included, oldest first.
func (p *Pipeline) Jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].EnqueuedAt.Before(out[k].EnqueuedAt) })
	return out
}

// Start launches the single worker. It returns immediately; the worker
// stops when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *Pipeline) run(ctx context.Context) {
	p.logger.Info().Msg("offload worker started")
	for {
		job := p.next()
		if job == nil {
			select {
			case <-ctx.Done():
				p.logger.Info().Msg("offload worker stopping")
				return
			case <-p.wake:
			case <-time.After(time.Second):
			}
			continue
		}
		p.process(ctx, job)
		if ctx.Err() != nil {
			p.logger.Info().Msg("offload worker stopping")
			return
		}
	}
}

func (p *Pipeline) next() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 {
		id := p.queue[0]
		p.queue = p.queue[1:]
		if job, ok := p.activeLocked(id); ok && job.Status == StatusPending {
			p.claimLocked(job)
			return job
		}
	}
	return nil
}

func (p *Pipeline) removeFromQueueLocked(recordingID string) {
	for i, id := range p.queue {
		if id == recordingID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// process drives one job to a terminal state: attempt, back off, retry,
// up to the ceiling. The source file is never deleted here, whatever
// happens.
func (p *Pipeline) process(ctx context.Context, job *Job) {
	logger := p.logger.With().
		Str(log.FieldJobID, job.ID).
		Str(log.FieldRecordingID, job.RecordingID).
		Logger()

	// The job arrives already claimed (uploading) by next or UploadNow.
	for {
		p.transition(job, StatusUploading, func(j *Job) { j.Attempts++ })

		err := p.attempt(ctx, job)
		if err == nil {
			p.transition(job, StatusCompleted, func(j *Job) {
				j.LastError = ""
				j.CompletedAt = time.Now()
			})
			metrics.RecordOffloadAttempt("success")
			logger.Info().Int(log.FieldAttempt, job.Attempts).Msg("recording offloaded")

			if err := p.disk.MarkOffloaded(job.RecordingID); err != nil {
				logger.Warn().Err(err).Msg("upload confirmed but marking offloaded failed")
			}
			return
		}

		outcome := "failure"
		if errors.Is(err, ErrChecksumMismatch) {
			outcome = "checksum_mismatch"
		}
		metrics.RecordOffloadAttempt(outcome)
		p.transition(job, job.Status, func(j *Job) { j.LastError = err.Error() })

		// A vanished source file cannot be fixed by retrying.
		if errors.Is(err, ErrFileMissing) {
			p.fail(job, logger)
			return
		}
		if job.Attempts >= p.maxRetries {
			p.fail(job, logger)
			return
		}

		delay := p.baseDelay << (job.Attempts - 1)
		logger.Warn().
			Err(err).
			Int(log.FieldAttempt, job.Attempts).
			Dur("retry_in", delay).
			Msg("offload attempt failed, backing off")
		if err := p.sleep(ctx, delay); err != nil {
			p.fail(job, logger)
			return
		}
	}
}

func (p *Pipeline) fail(job *Job, logger zerolog.Logger) {
	p.transition(job, StatusFailed, func(j *Job) { j.CompletedAt = time.Now() })
	logger.Error().
		Int(log.FieldAttempt, job.Attempts).
		Str("error", job.LastError).
		Msg("offload failed permanently, source file kept for remediation")
}

// attempt runs one full upload+confirm cycle.
func (p *Pipeline) attempt(ctx context.Context, job *Job) error {
	// Step 1: the source must still exist.
	info, err := os.Stat(job.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileMissing, job.FilePath)
		}
		return fmt.Errorf("offload: stat %s: %w", job.FilePath, err)
	}

	// Step 2: checksum from the manifest, or computed.
	manifest, err := p.disk.Manifest(job.RecordingID)
	if err != nil {
		return err
	}
	checksum := manifest.ChecksumSHA256
	if checksum == "" {
		checksum, err = fileSHA256(job.FilePath)
		if err != nil {
			return err
		}
	}

	// Step 3: multipart upload.
	started := time.Now()
	err = p.uploader.Upload(ctx, UploadRequest{
		FilePath: job.FilePath,
		Manifest: manifest,
		Checksum: checksum,
	})
	if err != nil {
		return err
	}

	// Step 4: confirm and compare checksums end-to-end.
	p.transition(job, StatusConfirming, nil)
	serverChecksum, err := p.uploader.Confirm(ctx, job.SessionID, job.CameraID)
	if err != nil {
		return err
	}
	if serverChecksum != checksum {
		return fmt.Errorf("%w: local %s, server %s", ErrChecksumMismatch, checksum, serverChecksum)
	}

	metrics.RecordOffloadSuccess(info.Size(), time.Since(started).Seconds())
	return nil
}

func (p *Pipeline) transition(job *Job, status JobStatus, mutate func(*Job)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.Status = status
	if mutate != nil {
		mutate(job)
	}
	p.saveLocked()
	p.publishLocked()
}

func (p *Pipeline) publishLocked() {
	counts := make(map[string]int, 5)
	for _, j := range p.jobs {
		counts[string(j.Status)]++
	}
	metrics.SetOffloadJobs(counts)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
