// Package audit buffers audit lines in memory, appends them to the on-disk
// log in batches, and serves indexed searches over what has been written.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
)

// ErrClosed is returned by BufferEntry after Close.
var ErrClosed = errors.New("audit writer closed")

// WriterOptions configures a BufferedWriter.
type WriterOptions struct {
	// BufferSize is the entry count that triggers a flush.
	BufferSize int
	// FlushInterval triggers a flush on the next BufferEntry once this much
	// time has passed since the last flush.
	FlushInterval time.Duration
	// Index receives every buffered line that carries the indexed fields
	// and a timestamp.
	// Nil disables indexing.
	Index *index.Index

	Tracker  *MetricsTracker
	Registry *metrics.Registry
	Logger   *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// BufferedWriter batches audit lines and appends them to one log file.
// BufferEntry, FlushBuffer and Close are mutually exclusive.
type BufferedWriter struct {
	path string
	opts WriterOptions

	mu        sync.Mutex
	buf       []model.BufferedEntry
	lastFlush time.Time
	closed    bool
	onAppend  AppendHook
}

// AppendHook is told the byte range [start, end) of path a flush is about to
// append, before the bytes are written. If the write fails it is called
// again with the same start and the end actually reached.
type AppendHook func(path string, start, end int64)

// NewBufferedWriter creates a writer appending to path. The file and its
// directory are created on the first flush.
func NewBufferedWriter(path string, opts WriterOptions) (*BufferedWriter, error) {
	if opts.BufferSize <= 0 {
		return nil, errclass.ErrValidation.WithMessagef("buffer size must be positive, got %d", opts.BufferSize)
	}
	if opts.FlushInterval <= 0 {
		return nil, errclass.ErrValidation.WithMessagef("flush interval must be positive, got %s", opts.FlushInterval)
	}
	if opts.Tracker == nil {
		opts.Tracker = NewMetricsTracker()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Logger = logging.OrGlobal(opts.Logger)

	return &BufferedWriter{
		path:      path,
		opts:      opts,
		buf:       make([]model.BufferedEntry, 0, opts.BufferSize),
		lastFlush: opts.Clock(),
	}, nil
}

// Path returns the log file the writer appends to.
func (w *BufferedWriter) Path() string {
	return w.path
}

// BufferEntry stores one audit line with the current timestamp, indexes it
// when indexing is enabled, and flushes if the buffer is full or the flush
// interval has elapsed. A flush error is returned to the caller; the entry
// stays buffered and is retried by the next flush.
func (w *BufferedWriter) BufferEntry(content string) error {
	start := time.Now()

	content = strings.TrimSuffix(strings.TrimSuffix(content, "\n"), "\r")
	if content == "" {
		return errclass.ErrValidation.WithMessage("audit entry must not be empty")
	}
	if strings.ContainsAny(content, "\r\n") {
		return errclass.ErrValidation.WithMessage("audit entry must be a single line")
	}
	if len(content) >= index.MaxLineSize {
		return errclass.ErrValidation.WithMessagef("audit entry must be shorter than %d bytes", index.MaxLineSize)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	now := w.opts.Clock()
	entry := model.BufferedEntry{Content: content, Timestamp: model.FromTime(now)}
	w.buf = append(w.buf, entry)

	if w.opts.Index != nil {
		// Same rule as Index.Rebuild, so a restart reproduces the live index.
		if fields, ok := index.ExtractFields(content); ok && fields.HasTimestamp {
			w.opts.Index.AddFields(fields)
		}
	}

	var err error
	if len(w.buf) >= w.opts.BufferSize || now.Sub(w.lastFlush) > w.opts.FlushInterval {
		err = w.flushLocked()
	}

	d := time.Since(start)
	w.opts.Tracker.RecordWrite(d)
	w.opts.Registry.RecordWrite(d)
	return err
}

// FlushBuffer appends every buffered entry to the log. An empty buffer is
// a no-op.
func (w *BufferedWriter) FlushBuffer() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// SetAppendHook installs fn, replacing any previous hook. Nil removes it.
func (w *BufferedWriter) SetAppendHook(fn AppendHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onAppend = fn
}

// Pending returns the number of buffered entries.
func (w *BufferedWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Close flushes the buffer and rejects further entries. On flush failure
// the writer stays open so the caller can retry.
func (w *BufferedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.closed = true
	return nil
}

func (w *BufferedWriter) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, e := range w.buf {
		sb.WriteString(e.Content)
		sb.WriteByte('\n')
	}

	n := len(w.buf)
	if err := w.appendLines([]byte(sb.String())); err != nil {
		w.opts.Registry.RecordFlush(n, false)
		w.opts.Logger.Warn("audit flush failed, entries kept in buffer",
			zap.String("path", w.path), zap.Int("pending", n), zap.Error(err))
		return err
	}

	w.buf = w.buf[:0]
	w.lastFlush = w.opts.Clock()
	w.opts.Tracker.RecordFlush()
	w.opts.Registry.RecordFlush(n, true)
	w.opts.Logger.Debug("audit buffer flushed", zap.String("path", w.path), zap.Int("entries", n))
	return nil
}

func (w *BufferedWriter) appendLines(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer unlockFile(file)

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}
	start := info.Size()
	if w.onAppend != nil {
		w.onAppend(w.path, start, start+int64(len(data)))
	}
	if _, err := file.Write(data); err != nil {
		if w.onAppend != nil {
			reached := start
			if info, serr := file.Stat(); serr == nil && info.Size() > start {
				reached = info.Size()
			}
			w.onAppend(w.path, start, reached)
		}
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}
