// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"
	"time"

	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/metrics"
)

type dispatchResult struct {
	cameraID string
	err      error
}

// fanout dispatches one unit of work per node concurrently and joins with a
// bounded timeout. The operation context is shared with the in-flight HTTP
// requests, so hitting the join deadline cancels stragglers instead of
// abandoning them. The result channel is buffered: a result that arrives
// after the deadline is dropped, never blocked on.
func (c *Coordinator) fanout(ctx context.Context, timeout time.Duration, op string, call func(context.Context, target) error) map[string]NodeResult {
	targets := c.targets()
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan dispatchResult, len(targets))
	for _, t := range targets {
		go func(t target) {
			ch <- dispatchResult{cameraID: t.cameraID, err: call(opCtx, t)}
		}(t)
	}

	results := make(map[string]NodeResult, len(targets))
	for range targets {
		select {
		case r := <-ch:
			if r.err != nil {
				results[r.cameraID] = NodeResult{Success: false, Error: r.err.Error()}
			} else {
				results[r.cameraID] = NodeResult{Success: true}
			}
		case <-opCtx.Done():
			for _, t := range targets {
				if _, ok := results[t.cameraID]; !ok {
					results[t.cameraID] = NodeResult{Success: false, Error: "timed out waiting for dispatch"}
				}
			}
			c.recordFanout(op, results)
			return results
		}
	}
	c.recordFanout(op, results)
	return results
}

func (c *Coordinator) recordFanout(op string, results map[string]NodeResult) {
	for id, r := range results {
		metrics.RecordFanout(op, r.Success)
		if !r.Success {
			c.logger.Warn().
				Str("operation", op).
				Str(log.FieldPeer, id).
				Str("error", r.Error).
				Msg("fan-out dispatch failed")
		}
	}
}
