// SPDX-License-Identifier: MIT

package clocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ProbeReply is the master's answer to a time probe.
type ProbeReply struct {
	Time time.Time `json:"time"`
}

// HTTPSampler estimates the offset by exchanging time probes with the
// master's /sync/probe endpoint. Each sample assumes a symmetric path and
// places the master's reading at the request midpoint; the sample with the
// smallest round trip wins.
type HTTPSampler struct {
	base    string
	http    *http.Client
	samples int
	clock   Clock
}

// NewHTTPSampler creates a sampler against the master node's base address
// ("host:port" or full URL).
func NewHTTPSampler(masterAddr string, timeout time.Duration) *HTTPSampler {
	base := masterAddr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &HTTPSampler{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
		samples: 5,
		clock:   RealClock{},
	}
}

type sample struct {
	offsetMS float64
	rtt      time.Duration
}

// Sample returns the estimated offset (local − master) in milliseconds.
func (s *HTTPSampler) Sample(ctx context.Context) (float64, error) {
	results := make([]sample, 0, s.samples)
	var lastErr error

	for i := 0; i < s.samples; i++ {
		one, err := s.probe(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, one)
	}

	if len(results) == 0 {
		return 0, fmt.Errorf("clocksync: all %d probes failed: %w", s.samples, lastErr)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].rtt < results[j].rtt })
	return results[0].offsetMS, nil
}

func (s *HTTPSampler) probe(ctx context.Context) (sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/sync/probe", nil)
	if err != nil {
		return sample{}, err
	}

	sent := s.clock.Now()
	res, err := s.http.Do(req)
	if err != nil {
		return sample{}, err
	}
	defer res.Body.Close()
	received := s.clock.Now()

	if res.StatusCode != http.StatusOK {
		return sample{}, fmt.Errorf("clocksync: probe returned HTTP %d", res.StatusCode)
	}

	var reply ProbeReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return sample{}, fmt.Errorf("clocksync: decode probe reply: %w", err)
	}

	rtt := received.Sub(sent)
	midpoint := sent.Add(rtt / 2)
	offset := midpoint.Sub(reply.Time)

	return sample{
		offsetMS: float64(offset) / float64(time.Millisecond),
		rtt:      rtt,
	}, nil
}
