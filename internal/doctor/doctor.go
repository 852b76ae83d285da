// Package doctor inspects an audit directory and its backup root for the
// debris of interrupted operations and for integrity failures.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/lock"
	"github.com/auditvault/auditvault/internal/restore"
	"github.com/auditvault/auditvault/internal/verify"
	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/model"
)

// Severities, most severe first.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
	Repairable  bool   `json:"repairable"`

	repair func() error
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	f.Repairable = f.repair != nil
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
}

// Doctor performs health checks for one backup manager.
type Doctor struct {
	mgr      *backup.Manager
	verifier *verify.Verifier
	locks    *lock.Manager
	logger   *zap.Logger
}

// NewDoctor creates a doctor. A nil verifier disables strict checks.
func NewDoctor(mgr *backup.Manager, verifier *verify.Verifier, logger *zap.Logger) *Doctor {
	return &Doctor{mgr: mgr, verifier: verifier, logger: logging.OrGlobal(logger)}
}

// SetLock makes Check report on the backup root lock file.
func (d *Doctor) SetLock(m *lock.Manager) {
	d.locks = m
}

// Check runs all diagnostic checks. Strict also recomputes every backup
// checksum.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	if err := d.checkRestoreLeftovers(result); err != nil {
		return nil, err
	}
	if err := d.checkBackups(result); err != nil {
		return nil, err
	}
	if d.locks != nil {
		if err := d.checkLock(result); err != nil {
			return nil, err
		}
	}
	if strict && d.verifier != nil {
		if err := d.checkIntegrity(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Repair runs Check and applies every available repair. It returns the
// findings that were repaired.
func (d *Doctor) Repair() ([]Finding, error) {
	result, err := d.Check(false)
	if err != nil {
		return nil, err
	}
	var repaired []Finding
	var errs []error
	for _, f := range result.Findings {
		if f.repair == nil {
			continue
		}
		if err := f.repair(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, err))
			continue
		}
		d.logger.Info("repaired", zap.String("category", f.Category), zap.String("path", f.Path))
		repaired = append(repaired, f)
	}
	return repaired, errors.Join(errs...)
}

// checkRestoreLeftovers finds staging and parked trees left next to the
// live directory by an interrupted restore. A parked tree with no live
// directory is the pre-restore audit state and is moved back.
func (d *Doctor) checkRestoreLeftovers(result *Result) error {
	live := d.mgr.SourceDir()
	parent := filepath.Dir(live)
	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", parent, err)
	}
	liveExists, err := fsutil.Exists(live)
	if err != nil {
		return err
	}

	prefix := "." + filepath.Base(live)
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(parent, name)
		switch {
		case strings.HasPrefix(name, prefix+restore.StagingMarker):
			result.add(Finding{
				Category:    "restore",
				Description: fmt.Sprintf("staging directory from an interrupted restore: %s", name),
				Severity:    SeverityWarning,
				Path:        path,
				repair:      func() error { return os.RemoveAll(path) },
			})
		case strings.HasPrefix(name, prefix+restore.ParkedMarker) && !liveExists:
			liveExists = true
			result.add(Finding{
				Category:    "restore",
				Description: fmt.Sprintf("audit directory missing; previous tree parked at %s", name),
				Severity:    SeverityCritical,
				Path:        path,
				repair:      func() error { return fsutil.RenameAndSync(path, live) },
			})
		case strings.HasPrefix(name, prefix+restore.ParkedMarker):
			result.add(Finding{
				Category:    "restore",
				Description: fmt.Sprintf("superseded audit tree left by a restore: %s", name),
				Severity:    SeverityWarning,
				Path:        path,
				repair:      func() error { return os.RemoveAll(path) },
			})
		}
	}

	if !liveExists {
		result.add(Finding{
			Category:    "audit",
			Description: "audit directory does not exist",
			Severity:    SeverityError,
			Path:        live,
		})
	}
	return nil
}

// checkBackups cross-checks metadata files against backup trees.
func (d *Doctor) checkBackups(result *Result) error {
	root := d.mgr.Config().BackupRoot
	metaDir := filepath.Join(root, backup.MetadataDirName)

	recorded := make(map[model.BackupID]bool)
	entries, err := os.ReadDir(metaDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", metaDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(metaDir, name)
		if strings.HasPrefix(name, ".avtmp-") {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", name),
				Severity:    SeverityInfo,
				Path:        path,
				repair:      func() error { return os.Remove(path) },
			})
			continue
		}
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := model.BackupID(strings.TrimSuffix(name, ".json"))
		info, err := d.mgr.LoadInfo(id)
		if err != nil {
			result.add(Finding{
				Category:    "metadata",
				Description: fmt.Sprintf("unreadable backup metadata: %v", err),
				Severity:    SeverityError,
				Path:        path,
			})
			continue
		}
		recorded[info.BackupID] = true
		if ok, _ := fsutil.Exists(d.mgr.BackupDir(info.BackupID)); !ok {
			result.add(Finding{
				Category:    "backup",
				Description: fmt.Sprintf("backup %s has metadata but no directory", info.BackupID),
				Severity:    SeverityError,
				Path:        d.mgr.BackupDir(info.BackupID),
			})
		}
	}

	trees, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", root, err)
	}
	for _, e := range trees {
		name := e.Name()
		if !e.IsDir() || !isBackupName(name) {
			continue
		}
		if recorded[model.BackupID(name)] {
			continue
		}
		path := filepath.Join(root, name)
		result.add(Finding{
			Category:    "orphan",
			Description: fmt.Sprintf("backup directory %s has no metadata (interrupted backup)", name),
			Severity:    SeverityWarning,
			Path:        path,
			repair:      func() error { return os.RemoveAll(path) },
		})
	}
	return nil
}

// isBackupName reports whether a directory under the backup root is named
// like one the backup manager creates.
func isBackupName(name string) bool {
	return strings.HasPrefix(name, model.BackupIDPrefix) || strings.HasPrefix(name, model.PreRestoreIDPrefix)
}

// checkLock reports a lock left by a crashed process. A live lock is only
// informational.
func (d *Doctor) checkLock(result *Result) error {
	state, rec, err := d.locks.Status()
	if err != nil {
		return err
	}
	switch state {
	case lock.StateExpired:
		desc := "stale lock file"
		if rec != nil {
			desc = fmt.Sprintf("stale lock held by %s", rec)
		}
		result.add(Finding{
			Category:    "lock",
			Description: desc,
			Severity:    SeverityWarning,
			Path:        d.locks.Path(),
			repair:      d.locks.Break,
		})
	case lock.StateHeld:
		result.add(Finding{
			Category:    "lock",
			Description: fmt.Sprintf("backup root locked by %s", rec),
			Severity:    SeverityInfo,
			Path:        d.locks.Path(),
		})
	}
	return nil
}

func (d *Doctor) checkIntegrity(result *Result) error {
	results, err := d.verifier.VerifyAll()
	if err != nil {
		return fmt.Errorf("verify backups: %w", err)
	}
	for _, r := range results {
		if r.Verified {
			continue
		}
		result.add(Finding{
			Category:    "integrity",
			Description: fmt.Sprintf("backup %s: %s", r.BackupID, r.Error),
			Severity:    SeverityCritical,
			Path:        d.mgr.BackupDir(r.BackupID),
		})
	}
	return nil
}
