package doctor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/doctor"
	"github.com/auditvault/auditvault/internal/lock"
	"github.com/auditvault/auditvault/internal/restore"
	"github.com/auditvault/auditvault/internal/verify"
	"github.com/auditvault/auditvault/pkg/model"
)

func setupDoctor(t *testing.T) (*doctor.Doctor, *backup.Manager, string) {
	t.Helper()
	root := t.TempDir()
	auditDir := filepath.Join(root, "audit")
	require.NoError(t, os.MkdirAll(auditDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(auditDir, "audit.log"), []byte(`{"user_id":"u","action":"a","timestamp":1}`+"\n"), 0644))

	now := time.Unix(1717243200, 0)
	mgr, err := backup.New(auditDir, model.BackupConfig{
		BackupRoot:      filepath.Join(root, "backups", "audit"),
		CompressEnabled: true,
	}, backup.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}), backup.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	doc := doctor.NewDoctor(mgr, verify.NewVerifier(mgr, zap.NewNop(), nil), zap.NewNop())
	return doc, mgr, auditDir
}

func categories(findings []doctor.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Category)
	}
	return out
}

func TestDoctor_Check_Healthy(t *testing.T) {
	doc, mgr, _ := setupDoctor(t)
	_, err := mgr.CreateBackup(context.Background(), nil)
	require.NoError(t, err)

	result, err := doc.Check(true)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_Tampered(t *testing.T) {
	doc, mgr, _ := setupDoctor(t)
	stats, err := mgr.CreateBackup(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(mgr.DataDir(stats.BackupID), "extra.log"), []byte("x\n"), 0644))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy, "non-strict check does not hash backups")

	result, err = doc.Check(true)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "integrity", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)
	assert.False(t, result.Findings[0].Repairable)
}

func TestDoctor_Check_MissingBackupTree(t *testing.T) {
	doc, mgr, _ := setupDoctor(t)
	stats, err := mgr.CreateBackup(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(mgr.BackupDir(stats.BackupID)))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"backup"}, categories(result.Findings))
}

func TestDoctor_Check_CorruptMetadata(t *testing.T) {
	doc, mgr, _ := setupDoctor(t)
	stats, err := mgr.CreateBackup(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mgr.MetadataPath(stats.BackupID), []byte("{"), 0644))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	// The tree is now unaccounted for as well.
	assert.ElementsMatch(t, []string{"metadata", "orphan"}, categories(result.Findings))
}

func TestDoctor_Repair_Leftovers(t *testing.T) {
	doc, mgr, auditDir := setupDoctor(t)
	root := mgr.Config().BackupRoot

	staging := restore.SiblingPath(auditDir, restore.StagingMarker, "abcd1234")
	parked := restore.SiblingPath(auditDir, restore.ParkedMarker, "abcd1234")
	orphan := filepath.Join(root, "audit_backup_1700000000")
	tmp := filepath.Join(root, backup.MetadataDirName, ".avtmp-123")
	unrelated := filepath.Join(root, "keep-me")
	for _, dir := range []string{staging, parked, orphan, unrelated, filepath.Dir(tmp)} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	require.NoError(t, os.WriteFile(tmp, []byte("{}"), 0644))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.ElementsMatch(t, []string{"restore", "restore", "orphan", "tmp"}, categories(result.Findings))
	for _, f := range result.Findings {
		assert.True(t, f.Repairable, f.Path)
	}

	repaired, err := doc.Repair()
	require.NoError(t, err)
	assert.Len(t, repaired, 4)
	for _, p := range []string{staging, parked, orphan, tmp} {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), p)
	}
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(auditDir, "audit.log"))
	assert.NoError(t, err)

	result, err = doc.Check(false)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Repair_RestoresParkedTree(t *testing.T) {
	doc, _, auditDir := setupDoctor(t)

	// Simulate a crash between parking the live tree and moving staging in.
	parked := restore.SiblingPath(auditDir, restore.ParkedMarker, "deadbeef")
	require.NoError(t, os.Rename(auditDir, parked))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)

	_, err = doc.Repair()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(auditDir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":"u"`)
}

func TestDoctor_Check_MissingAuditDir(t *testing.T) {
	doc, _, auditDir := setupDoctor(t)
	require.NoError(t, os.RemoveAll(auditDir))

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"audit"}, categories(result.Findings))
	assert.False(t, result.Findings[0].Repairable)
}

func TestDoctor_Check_Lock(t *testing.T) {
	doc, mgr, _ := setupDoctor(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	locks := lock.NewManager(filepath.Join(mgr.Config().BackupRoot, lock.FileName), time.Minute)
	locks.SetClock(func() time.Time { return now })
	doc.SetLock(locks)

	_, err := locks.Acquire("backup")
	require.NoError(t, err)

	result, err := doc.Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Equal(t, []string{"lock"}, categories(result.Findings))
	assert.Equal(t, doctor.SeverityInfo, result.Findings[0].Severity)
	assert.False(t, result.Findings[0].Repairable)

	now = now.Add(time.Hour)
	result, err = doc.Check(false)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, doctor.SeverityWarning, result.Findings[0].Severity)
	assert.True(t, result.Findings[0].Repairable)

	repaired, err := doc.Repair()
	require.NoError(t, err)
	assert.Len(t, repaired, 1)
	state, _, err := locks.Status()
	require.NoError(t, err)
	assert.Equal(t, lock.StateFree, state)
}
