// Package engine mirrors a directory tree into another location, letting the
// caller choose the destination name and writer for every regular file.
// Backups use it to compress log files on the way in; restores use it to
// decode them on the way out.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/progress"
)

// WriteFunc writes the file at src to dst. It reports the bytes read from
// src and the bytes written to dst.
type WriteFunc func(src, dst string, perm os.FileMode) (read, written int64, err error)

// PlanFunc chooses the destination path (relative to the mirror root) and
// writer for one regular file. A nil WriteFunc means CopyFile.
type PlanFunc func(rel string, info os.FileInfo) (dstRel string, write WriteFunc)

// Options configures a Mirror run.
type Options struct {
	// Plan maps source files to destinations. Nil copies everything as is.
	Plan PlanFunc
	// ContinueOnError records per-file failures in Result.Errors and keeps
	// going. Directory failures and cancellation always stop the run.
	ContinueOnError bool
	// Op names the operation for progress reporting.
	Op       string
	Progress progress.Callback
}

// FileError is a per-file failure recorded under ContinueOnError.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Result summarizes a Mirror run.
type Result struct {
	Files        int
	BytesRead    int64
	BytesWritten int64
	Errors       []FileError
}

// Mirror copies the tree at src into dst, creating dst if needed.
// The context is checked before every entry.
func Mirror(ctx context.Context, src, dst string, opts Options) (*Result, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	total := 0
	if opts.Progress != nil {
		total = countFiles(src)
	}
	tracker := progress.New(opts.Op, total, opts.Progress)
	result := &Result{}

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}

		switch {
		case info.IsDir():
			return copyDir(filepath.Join(dst, rel), info)

		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(path, filepath.Join(dst, rel)); err != nil {
				return fileFailure(result, opts, rel, err)
			}
			return nil

		case !info.Mode().IsRegular():
			return nil
		}

		dstRel, write := rel, WriteFunc(CopyFile)
		if opts.Plan != nil {
			r, w := opts.Plan(rel, info)
			if r != "" {
				dstRel = r
			}
			if w != nil {
				write = w
			}
		}

		read, written, err := write(path, filepath.Join(dst, dstRel), info.Mode().Perm())
		if err != nil {
			return fileFailure(result, opts, rel, err)
		}
		result.Files++
		result.BytesRead += read
		result.BytesWritten += written
		tracker.Step(filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("mirror %s: %w", src, err)
	}

	if err := fsutil.FsyncDir(dst); err != nil {
		return result, fmt.Errorf("fsync destination: %w", err)
	}
	tracker.Done()
	return result, nil
}

func fileFailure(result *Result, opts Options, rel string, err error) error {
	if !opts.ContinueOnError {
		return err
	}
	result.Errors = append(result.Errors, FileError{Path: filepath.ToSlash(rel), Err: err})
	return nil
}

func countFiles(src string) int {
	n := 0
	_ = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

// IsWithin reports whether path lies inside dir (or is dir itself).
func IsWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
