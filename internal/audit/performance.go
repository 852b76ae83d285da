package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
)

// Config holds the writer and indexing settings of a PerformanceLogger.
type Config struct {
	BufferSize      int
	FlushInterval   time.Duration
	IndexingEnabled bool
}

// PerformanceLogger ties the buffered writer, the search index and the
// performance counters together. It is the handle callers log and search
// through; construct one per audit log.
type PerformanceLogger struct {
	writer   *BufferedWriter
	idx      *index.Index
	tracker  *MetricsTracker
	registry *metrics.Registry
	logger   *zap.Logger

	cacheMu      sync.Mutex
	cache        map[index.Query][]model.Timestamp
	cacheVersion uint64
}

// Option customises a PerformanceLogger.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	registry *metrics.Registry
	clock    func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry exports counters to a Prometheus registry.
func WithRegistry(r *metrics.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithClock replaces time.Now for entry timestamps and flush intervals.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewPerformanceLogger creates a logger appending to logPath. The index
// always exists so searches work after BuildIndex; with indexing disabled
// new entries are simply not added to it.
func NewPerformanceLogger(logPath string, cfg Config, opts ...Option) (*PerformanceLogger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrGlobal(o.logger)

	p := &PerformanceLogger{
		idx:      index.New(),
		tracker:  NewMetricsTracker(),
		registry: o.registry,
		logger:   logger,
		cache:    make(map[index.Query][]model.Timestamp),
	}

	wopts := WriterOptions{
		BufferSize:    cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
		Tracker:       p.tracker,
		Registry:      o.registry,
		Logger:        logger,
		Clock:         o.clock,
	}
	if cfg.IndexingEnabled {
		wopts.Index = p.idx
	}
	w, err := NewBufferedWriter(logPath, wopts)
	if err != nil {
		return nil, err
	}
	p.writer = w
	return p, nil
}

// LogEntry buffers one audit line.
func (p *PerformanceLogger) LogEntry(content string) error {
	return p.writer.BufferEntry(content)
}

// Flush writes all buffered entries to disk.
func (p *PerformanceLogger) Flush() error {
	return p.writer.FlushBuffer()
}

// SetAppendHook forwards to the writer's SetAppendHook.
func (p *PerformanceLogger) SetAppendHook(fn AppendHook) {
	p.writer.SetAppendHook(fn)
}

// Pending returns the number of buffered entries.
func (p *PerformanceLogger) Pending() int {
	return p.writer.Pending()
}

// IndexedSearch runs a combined query, newest first. Results are cached
// until the index next changes.
func (p *PerformanceLogger) IndexedSearch(q index.Query) []model.Timestamp {
	start := time.Now()

	p.cacheMu.Lock()
	if v := p.idx.Version(); v != p.cacheVersion {
		clear(p.cache)
		p.cacheVersion = v
	}
	cached, hit := p.cache[q]
	p.cacheMu.Unlock()

	var result []model.Timestamp
	if hit {
		result = cached
	} else {
		result = p.idx.Search(q)
		p.cacheMu.Lock()
		if p.idx.Version() == p.cacheVersion {
			p.cache[q] = result
		}
		p.cacheMu.Unlock()
	}

	d := time.Since(start)
	p.tracker.RecordSearch(d, hit)
	p.registry.RecordSearch(d, hit)
	out := make([]model.Timestamp, len(result))
	copy(out, result)
	return out
}

// BuildIndex rebuilds the index from the given log files.
func (p *PerformanceLogger) BuildIndex(files []string) (index.RebuildStats, error) {
	return p.idx.Rebuild(files, p.logger)
}

// Index exposes the search index for per-dimension lookups and following.
func (p *PerformanceLogger) Index() *index.Index {
	return p.idx
}

// Metrics returns a copy of the performance counters.
func (p *PerformanceLogger) Metrics() model.PerformanceMetrics {
	return p.tracker.Snapshot()
}

// ResetMetrics zeroes the performance counters.
func (p *PerformanceLogger) ResetMetrics() {
	p.tracker.Reset()
}

// Close flushes pending entries and closes the writer.
func (p *PerformanceLogger) Close() error {
	return p.writer.Close()
}
