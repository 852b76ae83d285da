package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/pkg/logging"
)

// MaxLineSize bounds a single audit line during scans. Longer lines are
// skipped, not indexed.
const MaxLineSize = 4 << 20

// RebuildStats reports a cold rebuild.
type RebuildStats struct {
	Files   int `json:"files"`
	Lines   int `json:"lines"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Rebuild discards the current postings and re-indexes every line of the
// given files in order. Lines without the required fields or a timestamp,
// and lines longer than MaxLineSize, are skipped. Missing files are ignored; other read errors abort the
// rebuild and leave the index empty.
func (idx *Index) Rebuild(files []string, logger *zap.Logger) (RebuildStats, error) {
	logger = logging.OrGlobal(logger)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.reset()

	var stats RebuildStats
	for _, path := range files {
		n, err := idx.scanFile(path, &stats, logger)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			idx.reset()
			return stats, fmt.Errorf("index %s: %w", path, err)
		}
		stats.Files++
		logger.Debug("indexed log file", zap.String("path", path), zap.Int("lines", n))
	}

	logger.Info("index rebuilt",
		zap.Int("files", stats.Files),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func (idx *Index) scanFile(path string, stats *RebuildStats, logger *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var line []byte
	oversized := false
	n := 0
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > MaxLineSize {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return n, err
		}
		if err == nil || len(line) > 0 || oversized {
			n++
			stats.Lines++
			if oversized {
				stats.Skipped++
				logger.Warn("skipped oversized audit line",
					zap.String("path", path), zap.Int("line", n), zap.Int("max_bytes", MaxLineSize))
			} else {
				idx.indexLine(line, stats)
			}
		}
		if err == io.EOF {
			return n, nil
		}
		line = line[:0]
		oversized = false
	}
}

func (idx *Index) indexLine(raw []byte, stats *RebuildStats) {
	raw = bytes.TrimRight(raw, "\r\n")
	fields, ok := ExtractFields(string(raw))
	if !ok || !fields.HasTimestamp {
		stats.Skipped++
		return
	}
	idx.add(fields.UserID, fields.Action, fields.EntityID, fields.Timestamp)
	stats.Indexed++
}
