package audit_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/auditvault/auditvault/internal/audit"
	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func newWriter(t *testing.T, size int, clock *fakeClock, idx *index.Index) (*audit.BufferedWriter, *audit.MetricsTracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	tracker := audit.NewMetricsTracker()
	w, err := audit.NewBufferedWriter(path, audit.WriterOptions{
		BufferSize:    size,
		FlushInterval: time.Hour,
		Index:         idx,
		Tracker:       tracker,
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	return w, tracker, path
}

func line(user, action string, ts int64) string {
	l, _ := model.AuditEvent{UserID: user, Action: action, Timestamp: time.Unix(ts, 0)}.FormatLine()
	return l
}

func TestBufferEntry_FlushesAtBufferSize(t *testing.T) {
	const n = 5
	w, tracker, path := newWriter(t, n, newFakeClock(), nil)

	for i := 0; i < n-1; i++ {
		require.NoError(t, w.BufferEntry(line("u", "a", int64(i))))
	}
	assert.Equal(t, n-1, w.Pending())
	assert.NoFileExists(t, path, "N-1 entries must not flush")
	assert.Equal(t, int64(0), tracker.Snapshot().FlushedBatches)

	require.NoError(t, w.BufferEntry(line("u", "a", 99)))
	assert.Equal(t, 0, w.Pending())
	assert.Len(t, readLines(t, path), n)
	assert.Equal(t, int64(1), tracker.Snapshot().FlushedBatches, "exactly one flush")
}

func TestBufferEntry_FlushesAfterInterval(t *testing.T) {
	clock := newFakeClock()
	w, _, path := newWriter(t, 100, clock, nil)

	require.NoError(t, w.BufferEntry("first"))
	clock.Advance(time.Hour)
	require.NoError(t, w.BufferEntry("second"))
	assert.Equal(t, 1, w.Pending(), "interval must be exceeded, not merely reached")

	clock.Advance(time.Second)
	require.NoError(t, w.BufferEntry("third"))
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, []string{"first", "second", "third"}, readLines(t, path))
}

func TestFlushBuffer_EmptyIsNoop(t *testing.T) {
	w, tracker, path := newWriter(t, 10, newFakeClock(), nil)
	require.NoError(t, w.FlushBuffer())
	assert.NoFileExists(t, path)
	assert.Equal(t, int64(0), tracker.Snapshot().FlushedBatches)
}

func TestFlushBuffer_AppendsInOrder(t *testing.T) {
	w, _, path := newWriter(t, 10, newFakeClock(), nil)
	require.NoError(t, w.BufferEntry("a"))
	require.NoError(t, w.BufferEntry("b\n"))
	require.NoError(t, w.FlushBuffer())
	require.NoError(t, w.BufferEntry("c"))
	require.NoError(t, w.FlushBuffer())

	assert.Equal(t, []string{"a", "b", "c"}, readLines(t, path))
}

func TestFlushBuffer_FailureKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "audit")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0644))
	path := filepath.Join(blocker, "audit.log")

	w, err := audit.NewBufferedWriter(path, audit.WriterOptions{BufferSize: 2, FlushInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, w.BufferEntry("one"))
	err = w.BufferEntry("two")
	require.Error(t, err, "flush failure surfaces to the caller")
	assert.Equal(t, 2, w.Pending())

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, w.FlushBuffer())
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, []string{"one", "two"}, readLines(t, path))
}

func TestBufferEntry_Validation(t *testing.T) {
	w, tracker, _ := newWriter(t, 10, newFakeClock(), nil)

	for _, bad := range []string{"", "\n", "a\nb", "a\rb", strings.Repeat("x", index.MaxLineSize)} {
		err := w.BufferEntry(bad)
		require.Error(t, err, "%q", bad)
		assert.ErrorIs(t, err, errclass.ErrValidation)
	}
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, int64(0), tracker.Snapshot().BufferedWrites)
}

func TestBufferEntry_Indexes(t *testing.T) {
	idx := index.New()
	clock := newFakeClock()
	w, _, _ := newWriter(t, 10, clock, idx)

	require.NoError(t, w.BufferEntry(line("alice", "login", 1704067200)))
	require.NoError(t, w.BufferEntry(`{"user_id":"bob","action":"view"}`))
	require.NoError(t, w.BufferEntry("plain text"))

	got, ok := idx.SearchByUser("alice")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{1704067200}, got)

	_, ok = idx.SearchByUser("bob")
	assert.False(t, ok, "lines without a timestamp are not indexed, as on rebuild")
	assert.Equal(t, 1, idx.Len())
}

func TestFlush_AppendHook(t *testing.T) {
	w, _, path := newWriter(t, 10, newFakeClock(), nil)
	type span struct{ start, end int64 }
	var spans []span
	w.SetAppendHook(func(p string, start, end int64) {
		assert.Equal(t, path, p)
		spans = append(spans, span{start, end})
	})

	require.NoError(t, w.BufferEntry("first"))
	require.NoError(t, w.FlushBuffer())
	require.NoError(t, w.BufferEntry("second"))
	require.NoError(t, w.BufferEntry("third"))
	require.NoError(t, w.FlushBuffer())
	assert.Equal(t, []span{{0, 6}, {6, 19}}, spans)

	w.SetAppendHook(nil)
	require.NoError(t, w.BufferEntry("fourth"))
	require.NoError(t, w.FlushBuffer())
	assert.Len(t, spans, 2)
}

func TestClose(t *testing.T) {
	w, _, path := newWriter(t, 10, newFakeClock(), nil)
	require.NoError(t, w.BufferEntry("x"))
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"x"}, readLines(t, path))

	assert.ErrorIs(t, w.BufferEntry("y"), audit.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestNewBufferedWriter_InvalidOptions(t *testing.T) {
	_, err := audit.NewBufferedWriter("x", audit.WriterOptions{BufferSize: 0, FlushInterval: time.Second})
	assert.ErrorIs(t, err, errclass.ErrValidation)
	_, err = audit.NewBufferedWriter("x", audit.WriterOptions{BufferSize: 1})
	assert.ErrorIs(t, err, errclass.ErrValidation)
}

func TestBufferEntry_Concurrent(t *testing.T) {
	w, _, path := newWriter(t, 7, newFakeClock(), index.New())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.BufferEntry(line("u", "a", int64(i))))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	assert.Len(t, lines, 100)
	for _, l := range lines {
		_, ok := index.ExtractFields(l)
		assert.True(t, ok, "no interleaved lines: %q", l)
	}
}
