// Package verify recomputes backup checksums and compares them with the
// recorded metadata.
package verify

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/integrity"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
)

// Outcomes reported to metrics.
const (
	OutcomeVerified = "verified"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// Result contains verification results for a single backup. Verified is
// true only when the recomputed checksum equals the recorded one.
type Result struct {
	BackupID model.BackupID  `json:"backup_id"`
	Verified bool            `json:"verified"`
	Expected model.HashValue `json:"expected"`
	Actual   model.HashValue `json:"actual,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Verifier checks backups owned by one backup manager.
type Verifier struct {
	mgr      *backup.Manager
	logger   *zap.Logger
	registry *metrics.Registry
}

// NewVerifier creates a verifier. Logger and registry may be nil.
func NewVerifier(mgr *backup.Manager, logger *zap.Logger, registry *metrics.Registry) *Verifier {
	return &Verifier{mgr: mgr, logger: logging.OrGlobal(logger), registry: registry}
}

// VerifyBackup recomputes the checksum of one backup. A mismatch or a
// missing backup tree is reported through Result, not as an error; only an
// unknown id or unreadable metadata fails.
func (v *Verifier) VerifyBackup(id model.BackupID) (*Result, error) {
	info, err := v.mgr.LoadInfo(id)
	if err != nil {
		return nil, err
	}

	result := &Result{BackupID: info.BackupID, Expected: info.Checksum}

	dir := v.mgr.BackupDir(info.BackupID)
	if _, err := os.Stat(dir); err != nil {
		result.Error = fmt.Sprintf("backup directory unavailable: %v", err)
		v.record(result, OutcomeError)
		return result, nil
	}

	actual, err := integrity.ComputeDirChecksum(dir)
	if err != nil {
		result.Error = fmt.Sprintf("compute checksum: %v", err)
		v.record(result, OutcomeError)
		return result, nil
	}
	result.Actual = actual
	result.Verified = actual == info.Checksum
	if !result.Verified {
		result.Error = "checksum mismatch"
		v.record(result, OutcomeMismatch)
		return result, nil
	}

	v.record(result, OutcomeVerified)
	return result, nil
}

// VerifyAll verifies every listed backup, newest first.
func (v *Verifier) VerifyAll() ([]*Result, error) {
	infos, err := v.mgr.ListBackups()
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(infos))
	for _, info := range infos {
		result, err := v.VerifyBackup(info.BackupID)
		if err != nil {
			results = append(results, &Result{BackupID: info.BackupID, Expected: info.Checksum, Error: err.Error()})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (v *Verifier) record(r *Result, outcome string) {
	v.registry.RecordVerify(outcome)
	if outcome == OutcomeVerified {
		v.logger.Debug("backup verified", zap.String("backup_id", string(r.BackupID)))
		return
	}
	v.logger.Warn("backup failed verification",
		zap.String("backup_id", string(r.BackupID)),
		zap.String("reason", r.Error))
}
