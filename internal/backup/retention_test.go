package backup_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupOldBackups(t *testing.T) {
	mgr, auditDir, c := setup(t, true)
	write(t, filepath.Join(auditDir, "audit.log"), "x\n")

	day := 24 * time.Hour
	create := func(at time.Time) model.BackupID {
		c.now = at
		stats, err := mgr.CreateBackup(context.Background(), nil)
		require.NoError(t, err)
		return stats.BackupID
	}

	old := create(epoch.Add(-40 * day))
	boundary := create(epoch.Add(-30 * day))
	recent := create(epoch.Add(-1 * day))
	c.now = epoch

	deleted, err := mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoDirExists(t, mgr.BackupDir(old))
	assert.NoFileExists(t, mgr.MetadataPath(old))
	_, err = mgr.LoadInfo(old)
	assert.ErrorIs(t, err, errclass.ErrNotFound)

	for _, id := range []model.BackupID{boundary, recent} {
		assert.DirExists(t, mgr.BackupDir(id), "timestamp == cutoff is retained")
		assert.FileExists(t, mgr.MetadataPath(id))
	}

	deleted, err = mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted, "second run deletes nothing")
}

func TestCleanupOldBackups_Empty(t *testing.T) {
	mgr, _, _ := setup(t, true)
	deleted, err := mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestCutoff(t *testing.T) {
	mgr, _, _ := setup(t, true)
	assert.Equal(t, model.FromTime(epoch)-30*model.SecondsPerDay, mgr.Cutoff())
}

func TestDelete(t *testing.T) {
	mgr, auditDir, _ := setup(t, true)
	write(t, filepath.Join(auditDir, "audit.log"), "x\n")
	stats, err := mgr.CreateBackup(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(stats.BackupID))
	assert.NoDirExists(t, mgr.BackupDir(stats.BackupID))
	assert.ErrorIs(t, mgr.Delete(stats.BackupID), errclass.ErrNotFound)
}
