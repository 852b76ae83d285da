package restore_test

import (
	"testing"

	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/integrity"
	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/stretchr/testify/require"
)

func rewriteChecksum(t *testing.T, mgr *backup.Manager, id model.BackupID) {
	t.Helper()
	info, err := mgr.LoadInfo(id)
	require.NoError(t, err)
	info.Checksum, err = integrity.ComputeDirChecksum(mgr.BackupDir(id))
	require.NoError(t, err)
	require.NoError(t, fsutil.WriteJSON(mgr.MetadataPath(id), info))
}
