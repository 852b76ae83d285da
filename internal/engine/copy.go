package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst byte for byte, syncs it, and preserves the
// modification time.
func CopyFile(src, dst string, perm os.FileMode) (int64, int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, 0, fmt.Errorf("stat src %s: %w", src, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("open src %s: %w", src, err)
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, 0, fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, 0, fmt.Errorf("create dst %s: %w", dst, err)
	}
	defer dstFile.Close()

	n, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return n, n, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := dstFile.Sync(); err != nil {
		return n, n, fmt.Errorf("sync %s: %w", dst, err)
	}

	return n, n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func copyDir(dst string, info os.FileInfo) error {
	if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	return os.Symlink(target, dst)
}
