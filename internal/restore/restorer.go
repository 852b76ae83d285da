// Package restore replaces the live audit directory with the contents of a
// verified backup.
package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/compression"
	"github.com/auditvault/auditvault/internal/engine"
	"github.com/auditvault/auditvault/internal/verify"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/auditvault/auditvault/pkg/progress"
)

// Markers in the names of the sibling directories a restore creates next to
// the live audit directory: <parent>/.<base><marker><suffix>.
const (
	StagingMarker = ".restore-tmp-"
	ParkedMarker  = ".restore-old-"
)

// SiblingPath returns the staging or parked path for live.
func SiblingPath(live, marker, suffix string) string {
	return filepath.Join(filepath.Dir(live), "."+filepath.Base(live)+marker+suffix)
}

// Restorer handles restore operations for one backup manager.
type Restorer struct {
	mgr      *backup.Manager
	verifier *verify.Verifier
	logger   *zap.Logger
	registry *metrics.Registry
}

// NewRestorer creates a restorer. Logger and registry may be nil.
func NewRestorer(mgr *backup.Manager, logger *zap.Logger, registry *metrics.Registry) *Restorer {
	logger = logging.OrGlobal(logger)
	return &Restorer{
		mgr:      mgr,
		verifier: verify.NewVerifier(mgr, logger, registry),
		logger:   logger,
		registry: registry,
	}
}

// RestoreBackup restores one backup into the live audit directory:
//
//  1. verify the backup, refusing on checksum mismatch
//  2. snapshot the live directory as a pre_restore_<ts> backup
//  3. build the restored tree in a staging directory, decoding
//     compressed log files
//  4. swap the staging directory into place, rolling back on failure
//
// The live directory is untouched unless every earlier step succeeded.
func (r *Restorer) RestoreBackup(ctx context.Context, id model.BackupID, cb progress.Callback) (*model.RestoreResult, error) {
	start := time.Now()
	result, err := r.restore(ctx, id, cb)
	r.registry.RecordRestore(err == nil, time.Since(start))
	if err != nil {
		r.logger.Error("restore failed", zap.String("backup_id", string(id)), zap.Error(err))
		return nil, err
	}
	result.RestoreDuration = time.Since(start).Milliseconds()
	r.logger.Info("backup restored",
		zap.String("backup_id", string(id)),
		zap.String("pre_restore_id", string(result.PreRestoreID)),
		zap.Int("files", result.FilesRestored),
		zap.Int("decoded", result.FilesDecoded))
	return result, nil
}

func (r *Restorer) restore(ctx context.Context, id model.BackupID, cb progress.Callback) (*model.RestoreResult, error) {
	info, err := r.mgr.LoadInfo(id)
	if err != nil {
		return nil, err
	}

	check, err := r.verifier.VerifyBackup(info.BackupID)
	if err != nil {
		return nil, err
	}
	if !check.Verified {
		return nil, errclass.ErrChecksumMismatch.WithMessagef("refusing to restore %s: %s", id, check.Error)
	}

	result := &model.RestoreResult{BackupID: info.BackupID}
	live := r.mgr.SourceDir()

	liveExists, err := fsutil.Exists(live)
	if err != nil {
		return nil, err
	}
	if liveExists {
		snap, err := r.mgr.CreatePreRestoreSnapshot(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("pre-restore snapshot: %w", err)
		}
		result.PreRestoreID = snap.BackupID
	}

	parent := filepath.Dir(live)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("create audit parent: %w", err)
	}
	suffix := uuid.NewString()[:8]
	staging := SiblingPath(live, StagingMarker, suffix)

	var decoded atomic.Int64
	var plan engine.PlanFunc
	if info.Compressed {
		decode := func(src, dst string, perm os.FileMode) (int64, int64, error) {
			read, err := fileSize(src)
			if err != nil {
				return 0, 0, err
			}
			n, err := compression.DecompressFile(src, dst, perm)
			if err != nil {
				return read, 0, err
			}
			decoded.Add(1)
			return read, n, nil
		}
		plan = func(rel string, fi os.FileInfo) (string, engine.WriteFunc) {
			original, encoded := compression.OriginalName(rel)
			if !encoded {
				return original, nil
			}
			return original, decode
		}
	}

	res, err := engine.Mirror(ctx, r.mgr.DataDir(info.BackupID), staging, engine.Options{
		Plan:     plan,
		Op:       progress.OpRestore,
		Progress: cb,
	})
	if err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("stage restore: %w", err)
	}
	result.FilesRestored = res.Files
	result.FilesDecoded = int(decoded.Load())

	if err := ctx.Err(); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}
	parked, err := swap(live, staging, liveExists, suffix)
	if err != nil {
		os.RemoveAll(staging)
		return nil, err
	}
	if parked != "" {
		if err := os.RemoveAll(parked); err != nil {
			r.logger.Warn("could not remove previous audit tree", zap.String("path", parked), zap.Error(err))
		}
	}
	return result, nil
}

// swap moves staging into live and returns where the previous live tree
// was parked, if any. The parked tree is moved back if the second rename
// fails.
func swap(live, staging string, liveExists bool, suffix string) (string, error) {
	if !liveExists {
		if err := fsutil.RenameAndSync(staging, live); err != nil {
			return "", fmt.Errorf("move restored tree into place: %w", err)
		}
		return "", nil
	}

	parked := SiblingPath(live, ParkedMarker, suffix)
	if err := fsutil.RenameAndSync(live, parked); err != nil {
		return "", fmt.Errorf("park live directory: %w", err)
	}
	if err := fsutil.RenameAndSync(staging, live); err != nil {
		if rbErr := fsutil.RenameAndSync(parked, live); rbErr != nil {
			return "", fmt.Errorf("move restored tree into place: %w (rollback failed, previous tree at %s: %v)", err, parked, rbErr)
		}
		return "", fmt.Errorf("move restored tree into place: %w", err)
	}
	return parked, nil
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
