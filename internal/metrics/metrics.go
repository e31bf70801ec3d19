// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Clock sync metrics
	clockOffsetMS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camsync_clock_offset_ms",
		Help: "Estimated offset from the master clock in milliseconds (signed)",
	})

	clockSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camsync_clock_sync_total",
		Help: "Clock offset measurements by outcome",
	}, []string{"outcome"}) // outcome=success|timeout|error

	clockWithinTolerance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camsync_clock_within_tolerance",
		Help: "Whether the current offset is within tolerance (1) or not (0)",
	})

	// Peer metrics
	peersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camsync_peers_online",
		Help: "Number of peers currently reported online",
	})

	peersKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camsync_peers_known",
		Help: "Number of peers in the registry",
	})

	livenessPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camsync_liveness_poll_errors_total",
		Help: "Total number of failed peer status polls",
	})

	// Coordination metrics
	fanoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camsync_fanout_total",
		Help: "Per-node fan-out dispatches by operation and outcome",
	}, []string{"operation", "outcome"}) // operation=start|stop|selftest outcome=success|failure

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camsync_sessions_total",
		Help: "Recording sessions by terminal state",
	}, []string{"state"}) // state=completed|failed

	// Offload metrics
	offloadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camsync_offload_attempts_total",
		Help: "Offload upload attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure|checksum_mismatch

	offloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camsync_offload_bytes_total",
		Help: "Total bytes uploaded to the central server",
	})

	offloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camsync_offload_duration_seconds",
		Help:    "Duration of successful upload+confirm cycles",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	offloadJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camsync_offload_jobs",
		Help: "Offload jobs by status",
	}, []string{"status"})
)

// SetClockOffset records the current offset estimate and tolerance state.
func SetClockOffset(offsetMS float64, withinTolerance bool) {
	clockOffsetMS.Set(offsetMS)
	if withinTolerance {
		clockWithinTolerance.Set(1)
	} else {
		clockWithinTolerance.Set(0)
	}
}

// RecordClockSync counts one offset measurement attempt.
func RecordClockSync(outcome string) {
	clockSyncTotal.WithLabelValues(outcome).Inc()
}

// SetPeerCounts records registry size and online count.
func SetPeerCounts(known, online int) {
	peersKnown.Set(float64(known))
	peersOnline.Set(float64(online))
}

// RecordLivenessPollError counts one failed peer poll.
func RecordLivenessPollError() {
	livenessPollErrors.Inc()
}

// RecordFanout counts one per-node dispatch result.
func RecordFanout(operation string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	fanoutTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionEnd counts a session reaching a terminal state.
func RecordSessionEnd(state string) {
	sessionsTotal.WithLabelValues(state).Inc()
}

// RecordOffloadAttempt counts one upload attempt by outcome.
func RecordOffloadAttempt(outcome string) {
	offloadAttempts.WithLabelValues(outcome).Inc()
}

// RecordOffloadSuccess records bytes and duration for a confirmed upload.
func RecordOffloadSuccess(bytes int64, seconds float64) {
	offloadBytes.Add(float64(bytes))
	offloadDuration.Observe(seconds)
}

// SetOffloadJobs records the current job-table composition.
func SetOffloadJobs(byStatus map[string]int) {
	for _, status := range []string{"pending", "uploading", "confirming", "completed", "failed"} {
		offloadJobs.WithLabelValues(status).Set(float64(byStatus[status]))
	}
}
