// Package integrity computes the directory checksum recorded with every backup.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auditvault/auditvault/pkg/model"
)

// ComputeDirChecksum hashes every entry under root. Each entry becomes one
// line (type, slash-separated relative path, and a content hash for files or
// the link target for symlinks); lines are sorted in byte order before the
// final SHA-256 so the result does not depend on walk order or platform.
// Permissions and timestamps are not part of the checksum.
func ComputeDirChecksum(root string) (model.HashValue, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("stat checksum root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("checksum root %s is not a directory", root)
	}

	var lines []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			lines = append(lines, "dir:"+rel)
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", rel, err)
			}
			lines = append(lines, "symlink:"+rel+":"+filepath.ToSlash(target))
		default:
			sum, err := hashFile(path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", rel, err)
			}
			lines = append(lines, "file:"+rel+":"+sum)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(lines)

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(buf.String()))
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
