package audit

import (
	"sync"
	"time"

	"github.com/auditvault/auditvault/pkg/model"
)

// MetricsTracker keeps the running performance counters. Averages are
// updated incrementally: avg' = (avg*(n-1) + sample) / n.
type MetricsTracker struct {
	mu sync.Mutex
	m  model.PerformanceMetrics
}

// NewMetricsTracker returns a tracker with all counters at zero.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

// RecordWrite counts one buffered entry and folds d into the write average.
func (t *MetricsTracker) RecordWrite(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.TotalOperations++
	t.m.BufferedWrites++
	t.m.AvgWriteTimeMs = runningAvg(t.m.AvgWriteTimeMs, t.m.BufferedWrites, ms(d))
}

// RecordFlush counts one successful non-empty flush.
func (t *MetricsTracker) RecordFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.TotalOperations++
	t.m.FlushedBatches++
}

// RecordSearch counts one indexed search and its cache outcome.
func (t *MetricsTracker) RecordSearch(d time.Duration, cacheHit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.TotalOperations++
	t.m.IndexSearches++
	if cacheHit {
		t.m.CacheHits++
	} else {
		t.m.CacheMisses++
	}
	t.m.AvgSearchTimeMs = runningAvg(t.m.AvgSearchTimeMs, t.m.IndexSearches, ms(d))
}

// Snapshot returns a copy of the current counters.
func (t *MetricsTracker) Snapshot() model.PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}

// Reset zeroes every counter.
func (t *MetricsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = model.PerformanceMetrics{}
}

func runningAvg(avg float64, n int64, sample float64) float64 {
	if n <= 1 {
		return sample
	}
	return (avg*float64(n-1) + sample) / float64(n)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
