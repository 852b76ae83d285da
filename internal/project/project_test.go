package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/auditvault/auditvault/internal/project"
	"github.com/auditvault/auditvault/pkg/config"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_CreatesLayout(t *testing.T) {
	root := t.TempDir()

	p, err := project.Init(root, nil)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, "audit"))
	assert.DirExists(t, filepath.Join(root, "audit", "daily"))
	assert.DirExists(t, filepath.Join(root, "backups", "audit", "metadata"))
	assert.FileExists(t, config.Path(root))
	assert.Equal(t, filepath.Join(root, "audit", "audit.log"), p.MainLog())
	assert.Equal(t, filepath.Join(root, "backups", "audit"), p.BackupRoot())
}

func TestInit_Twice(t *testing.T) {
	root := t.TempDir()
	_, err := project.Init(root, nil)
	require.NoError(t, err)

	_, err = project.Init(root, nil)
	assert.ErrorIs(t, err, errclass.ErrValidation)
}

func TestInit_CustomConfig(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.AuditDir = "logs"
	cfg.Backup.Root = filepath.Join(root, "vault")

	p, err := project.Init(root, cfg)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "logs", "daily"))
	assert.DirExists(t, filepath.Join(root, "vault", "metadata"))

	reopened, err := project.Open(root)
	require.NoError(t, err)
	assert.Equal(t, p.AuditDir(), reopened.AuditDir())
	assert.Equal(t, p.BackupRoot(), reopened.BackupRoot())
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	_, err := project.Init(root, nil)
	require.NoError(t, err)

	nested := filepath.Join(root, "audit", "daily")
	p, err := project.Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)

	_, err = project.Discover(t.TempDir())
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestLogFiles(t *testing.T) {
	root := t.TempDir()
	p, err := project.Init(root, nil)
	require.NoError(t, err)

	files, err := p.LogFiles()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, os.WriteFile(p.MainLog(), []byte("x\n"), 0644))
	for _, name := range []string{"2024-01-02.log", "2024-01-01.log", "notes.txt", "2024-01-03.jsonl"} {
		require.NoError(t, os.WriteFile(filepath.Join(p.DailyDir(), name), nil, 0644))
	}

	files, err = p.LogFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		p.MainLog(),
		filepath.Join(p.DailyDir(), "2024-01-01.log"),
		filepath.Join(p.DailyDir(), "2024-01-02.log"),
		filepath.Join(p.DailyDir(), "2024-01-03.jsonl"),
	}, files)
}
