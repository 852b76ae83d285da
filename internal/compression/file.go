package compression

import (
	"fmt"
	"os"
	"strings"
)

// Ext is appended to the name of every file stored through the codec.
const Ext = ".avz"

// VerbatimExt is appended to a file copied as is whose own name ends in Ext
// or VerbatimExt, so that stored names stay unambiguous.
const VerbatimExt = ".avraw"

// IsCompressedFile returns true if the path carries the codec extension.
func IsCompressedFile(path string) bool {
	return strings.HasSuffix(path, Ext)
}

// CompressedPath returns the stored path for a file.
func CompressedPath(path string) string {
	return path + Ext
}

// UncompressedPath returns the original path for a stored file.
func UncompressedPath(path string) string {
	return strings.TrimSuffix(path, Ext)
}

// StoredName returns the name a file is kept under in a compressed backup.
// Encoded files get Ext. Verbatim files keep their name unless it ends in
// Ext or VerbatimExt, in which case VerbatimExt is appended.
func StoredName(path string, encoded bool) string {
	if encoded {
		return path + Ext
	}
	if strings.HasSuffix(path, Ext) || strings.HasSuffix(path, VerbatimExt) {
		return path + VerbatimExt
	}
	return path
}

// OriginalName reverses StoredName. It reports whether the stored file holds
// a codec frame.
func OriginalName(stored string) (string, bool) {
	switch {
	case strings.HasSuffix(stored, VerbatimExt):
		return strings.TrimSuffix(stored, VerbatimExt), false
	case strings.HasSuffix(stored, Ext):
		return strings.TrimSuffix(stored, Ext), true
	default:
		return stored, false
	}
}

// CompressFile encodes src into dst. It returns the original and stored sizes.
func CompressFile(src, dst string, perm os.FileMode) (int64, int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, 0, fmt.Errorf("read file: %w", err)
	}
	encoded := Compress(data)
	if err := writeSynced(dst, encoded, perm); err != nil {
		return 0, 0, err
	}
	return int64(len(data)), int64(len(encoded)), nil
}

// DecompressFile decodes the frame stored at src into dst and returns the
// number of bytes written. Nothing is written if the frame is invalid.
func DecompressFile(src, dst string, perm os.FileMode) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("read compressed file: %w", err)
	}
	decoded, err := Decompress(data)
	if err != nil {
		return 0, fmt.Errorf("decompress %s: %w", src, err)
	}
	if err := writeSynced(dst, decoded, perm); err != nil {
		return 0, err
	}
	return int64(len(decoded)), nil
}

func writeSynced(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}
