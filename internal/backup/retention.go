package backup

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
)

// Cutoff returns the oldest timestamp retention keeps.
func (m *Manager) Cutoff() model.Timestamp {
	return model.FromTime(m.clock()) - model.Timestamp(int64(m.cfg.RetentionDays)*model.SecondsPerDay)
}

// CleanupOldBackups deletes every backup whose timestamp is older than the
// retention cutoff and returns how many were removed. A failed deletion is
// reported after the remaining candidates have been tried.
func (m *Manager) CleanupOldBackups() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.ListBackups()
	if err != nil {
		return 0, err
	}

	cutoff := m.Cutoff()
	deleted := 0
	var errs []error
	for _, info := range all {
		if info.Timestamp >= cutoff {
			continue
		}
		if err := m.delete(info.BackupID); err != nil {
			m.logger.Warn("retention delete failed", zap.String("backup_id", string(info.BackupID)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		deleted++
		m.logger.Info("backup expired",
			zap.String("backup_id", string(info.BackupID)),
			zap.Time("created", info.Timestamp.Time()))
	}

	m.registry.RecordCleanup(deleted)
	if len(errs) > 0 {
		return deleted, errclass.ErrPartialFailure.WithMessagef("%d backups could not be deleted", len(errs)).Wrap(errors.Join(errs...))
	}
	return deleted, nil
}

// Delete removes one backup regardless of age.
func (m *Manager) Delete(id model.BackupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.LoadInfo(id); err != nil {
		return err
	}
	return m.delete(id)
}

// delete removes the tree before the metadata so an interrupted delete is
// still listed and retried by the next cleanup.
func (m *Manager) delete(id model.BackupID) error {
	if err := os.RemoveAll(m.BackupDir(id)); err != nil {
		return fmt.Errorf("remove backup %s: %w", id, err)
	}
	if err := os.Remove(m.MetadataPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove metadata %s: %w", id, err)
	}
	return nil
}
