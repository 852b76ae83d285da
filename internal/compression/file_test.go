package compression_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/auditvault/auditvault/internal/compression"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "audit.log.avz", compression.CompressedPath("audit.log"))
	assert.Equal(t, "audit.log", compression.UncompressedPath("audit.log.avz"))
	assert.True(t, compression.IsCompressedFile("daily/2024-01-01.log.avz"))
	assert.False(t, compression.IsCompressedFile("audit.log"))
}

func TestStoredName(t *testing.T) {
	tests := []struct {
		original string
		encoded  bool
		stored   string
	}{
		{"audit.log", true, "audit.log.avz"},
		{"notes.txt", false, "notes.txt"},
		{"attachments/export.avz", false, "attachments/export.avz.avraw"},
		{"export.avraw", false, "export.avraw.avraw"},
		{"export.avz", true, "export.avz.avz"},
		{"a.log.avz", false, "a.log.avz.avraw"},
	}
	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			stored := compression.StoredName(tt.original, tt.encoded)
			assert.Equal(t, tt.stored, stored)
			original, encoded := compression.OriginalName(stored)
			assert.Equal(t, tt.original, original)
			assert.Equal(t, tt.encoded, encoded)
		})
	}
}

func TestCompressFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "audit.log")
	content := bytes.Repeat([]byte(`{"user_id":"u1","action":"login"}`+"\n"), 50)
	require.NoError(t, os.WriteFile(src, content, 0644))

	stored := compression.CompressedPath(filepath.Join(dir, "copy.log"))
	orig, size, err := compression.CompressFile(src, stored, 0644)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), orig)

	info, err := os.Stat(stored)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	restored := compression.UncompressedPath(stored)
	n, err := compression.DecompressFile(stored, restored, 0644)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDecompressFile_CorruptWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.log.avz")
	require.NoError(t, os.WriteFile(src, []byte("not a frame"), 0644))

	dst := filepath.Join(dir, "bad.log")
	_, err := compression.DecompressFile(src, dst, 0644)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrFrameCorrupt))
	assert.NoFileExists(t, dst)
}

func TestCompressFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, _, err := compression.CompressFile(filepath.Join(dir, "nope"), filepath.Join(dir, "x.avz"), 0644)
	assert.Error(t, err)
}
