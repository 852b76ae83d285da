package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/model"
)

// LineFunc receives every complete line the follower reads. ok reports
// whether the line carries the indexed fields and a timestamp.
type LineFunc func(path, line string, fields model.LogFields, ok bool)

// Follower indexes lines appended to log files by any process. It starts at
// the current end of every existing file, so only new lines are seen. Byte
// ranges registered with MarkOwn were appended by a local writer that has
// already indexed them; their lines are delivered but not indexed again.
type Follower struct {
	idx     *Index
	dirs    []string
	exts    []string
	onLine  LineFunc
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	offsets map[string]int64
	own     map[string]map[int64]int64
}

// NewFollower watches dirs (non-recursively) for files with one of exts.
// A nil onLine only indexes.
func NewFollower(idx *Index, dirs, exts []string, onLine LineFunc, logger *zap.Logger) (*Follower, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	f := &Follower{
		idx:     idx,
		exts:    exts,
		onLine:  onLine,
		logger:  logging.OrGlobal(logger),
		watcher: w,
		offsets: make(map[string]int64),
		own:     make(map[string]map[int64]int64),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		f.dirs = append(f.dirs, dir)
		f.seedOffsets(dir)
	}
	if len(f.dirs) == 0 {
		w.Close()
		return nil, fmt.Errorf("no watchable directories in %v", dirs)
	}
	return f, nil
}

func (f *Follower) seedOffsets(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !f.tracked(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			f.offsets[filepath.Clean(filepath.Join(dir, e.Name()))] = info.Size()
		}
	}
}

func (f *Follower) tracked(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Run processes file events until ctx is cancelled or the watcher fails.
func (f *Follower) Run(ctx context.Context) error {
	defer f.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			if !f.tracked(event.Name) {
				continue
			}
			path := filepath.Clean(event.Name)
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := f.drain(path); err != nil {
					f.logger.Warn("follow read failed", zap.String("path", path), zap.Error(err))
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				f.mu.Lock()
				delete(f.offsets, path)
				delete(f.own, path)
				f.mu.Unlock()
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

// MarkOwn records that bytes [start, end) of path are appended by the local
// writer. A later call with the same start replaces the range; an empty
// range removes it. It must be called before the bytes are written.
func (f *Follower) MarkOwn(path string, start, end int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	if end <= start {
		delete(f.own[path], start)
		return
	}
	if f.own[path] == nil {
		f.own[path] = make(map[int64]int64)
	}
	f.own[path][start] = end
}

type followedLine struct {
	text string
	own  bool
}

// drain reads complete lines appended since the last read. A trailing
// partial line is left for the next event. A file that shrank is treated
// as replaced and re-read from the start.
func (f *Follower) drain(path string) error {
	lines, err := f.read(path)
	if err != nil {
		return err
	}
	// Indexing and callbacks run without f.mu so that a callback may log
	// through the local writer.
	for _, l := range lines {
		fields, ok := ExtractFields(l.text)
		if ok && !fields.HasTimestamp {
			ok = false
		}
		if ok && !l.own {
			f.idx.AddFields(fields)
		}
		if f.onLine != nil {
			f.onLine(path, l.text, fields, ok)
		}
	}
	return nil
}

func (f *Follower) read(path string) ([]followedLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	offset := f.offsets[path]
	if info.Size() < offset {
		offset = 0
		delete(f.own, path)
	}
	if info.Size() == offset {
		f.offsets[path] = offset
		return nil, nil
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(file, info.Size()-offset))
	if err != nil {
		return nil, err
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		f.offsets[path] = offset
		return nil, nil
	}

	var lines []followedLine
	pos := offset
	for _, raw := range bytes.Split(data[:end], []byte{'\n'}) {
		lineStart := pos
		pos += int64(len(raw)) + 1
		line := string(bytes.TrimRight(raw, "\r"))
		if line == "" {
			continue
		}
		lines = append(lines, followedLine{text: line, own: f.ownedLocked(path, lineStart)})
	}
	f.offsets[path] = pos
	for start, stop := range f.own[path] {
		if stop <= pos {
			delete(f.own[path], start)
		}
	}
	return lines, nil
}

func (f *Follower) ownedLocked(path string, at int64) bool {
	for start, end := range f.own[path] {
		if at >= start && at < end {
			return true
		}
	}
	return false
}

// Close stops the watcher without waiting for Run.
func (f *Follower) Close() error {
	return f.watcher.Close()
}
