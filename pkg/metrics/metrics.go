// Package metrics exports audit engine counters to Prometheus.
//
// Every Record method is safe on a nil *Registry, so components take an
// optional registry and callers that do not care about metrics pass nil.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auditvault"

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry holds all audit engine metrics.
type Registry struct {
	reg *prometheus.Registry

	writes         prometheus.Counter
	writeDuration  prometheus.Histogram
	flushes        *prometheus.CounterVec
	flushedEntries prometheus.Counter
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram

	backups          *prometheus.CounterVec
	backupDuration   prometheus.Histogram
	backupBytes      *prometheus.CounterVec
	backupFileErrors prometheus.Counter
	restores         *prometheus.CounterVec
	restoreDuration  prometheus.Histogram
	verifications    *prometheus.CounterVec
	retentionDeleted prometheus.Counter
}

// NewRegistry creates a registry with its own Prometheus collector set,
// including the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "entries_buffered_total",
			Help: "Audit entries accepted into the write buffer.",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "writer", Name: "buffer_entry_seconds",
			Help:    "Time spent buffering one entry, including any triggered flush.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "flushes_total",
			Help: "Buffer flushes by result.",
		}, []string{"result"}),
		flushedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "entries_flushed_total",
			Help: "Audit entries written to disk.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "index", Name: "searches_total",
			Help: "Indexed searches by cache outcome.",
		}, []string{"cache"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "index", Name: "search_seconds",
			Help:    "Indexed search latency.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "runs_total",
			Help: "Backup runs by result.",
		}, []string{"result"}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "backup", Name: "duration_seconds",
			Help:    "Backup run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		backupBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "bytes_total",
			Help: "Bytes read from the audit directory and stored in backups.",
		}, []string{"kind"}),
		backupFileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "file_errors_total",
			Help: "Files skipped during backup because of per-file errors.",
		}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restore", Name: "runs_total",
			Help: "Restore runs by result.",
		}, []string{"result"}),
		restoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "restore", Name: "duration_seconds",
			Help:    "Restore run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "verifications_total",
			Help: "Backup verifications by result.",
		}, []string{"result"}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "retention_deleted_total",
			Help: "Backups deleted by retention cleanup.",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.writes, r.writeDuration, r.flushes, r.flushedEntries,
		r.searches, r.searchDuration,
		r.backups, r.backupDuration, r.backupBytes, r.backupFileErrors,
		r.restores, r.restoreDuration, r.verifications, r.retentionDeleted,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordWrite records one buffered entry.
func (r *Registry) RecordWrite(d time.Duration) {
	if r == nil {
		return
	}
	r.writes.Inc()
	r.writeDuration.Observe(d.Seconds())
}

// RecordFlush records a flush attempt of n entries.
func (r *Registry) RecordFlush(n int, ok bool) {
	if r == nil {
		return
	}
	r.flushes.WithLabelValues(result(ok)).Inc()
	if ok {
		r.flushedEntries.Add(float64(n))
	}
}

// RecordSearch records an indexed search.
func (r *Registry) RecordSearch(d time.Duration, cacheHit bool) {
	if r == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	r.searches.WithLabelValues(cache).Inc()
	r.searchDuration.Observe(d.Seconds())
}

// RecordBackup records a backup run.
func (r *Registry) RecordBackup(ok bool, d time.Duration, originalBytes, storedBytes int64, fileErrors int) {
	if r == nil {
		return
	}
	r.backups.WithLabelValues(result(ok)).Inc()
	r.backupDuration.Observe(d.Seconds())
	r.backupBytes.WithLabelValues("original").Add(float64(originalBytes))
	r.backupBytes.WithLabelValues("stored").Add(float64(storedBytes))
	r.backupFileErrors.Add(float64(fileErrors))
}

// RecordRestore records a restore run.
func (r *Registry) RecordRestore(ok bool, d time.Duration) {
	if r == nil {
		return
	}
	r.restores.WithLabelValues(result(ok)).Inc()
	r.restoreDuration.Observe(d.Seconds())
}

// RecordVerify records a verification outcome: "verified", "mismatch" or "error".
func (r *Registry) RecordVerify(outcome string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
}

// RecordCleanup records backups removed by retention.
func (r *Registry) RecordCleanup(deleted int) {
	if r == nil {
		return
	}
	r.retentionDeleted.Add(float64(deleted))
}
