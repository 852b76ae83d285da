// Package backup creates, lists and expires point-in-time copies of the
// audit directory.
//
// Layout under the backup root:
//
//	<root>/<backup_id>/audit/...      mirrored tree, log files compressed
//	<root>/metadata/<backup_id>.json  BackupInfo written after the tree
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/compression"
	"github.com/auditvault/auditvault/internal/engine"
	"github.com/auditvault/auditvault/internal/integrity"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/auditvault/auditvault/pkg/pathutil"
	"github.com/auditvault/auditvault/pkg/progress"
)

const (
	// DataDirName is the directory inside a backup holding the mirrored tree.
	DataDirName = "audit"
	// MetadataDirName holds one JSON file per backup.
	MetadataDirName = "metadata"
)

// DefaultLogExtensions are compressed when no extensions are configured.
var DefaultLogExtensions = []string{".log", ".jsonl"}

// Manager owns one backup root for one audit directory. Mutating
// operations are serialised.
type Manager struct {
	sourceDir string
	cfg       model.BackupConfig
	clock     func() time.Time
	logger    *zap.Logger
	registry  *metrics.Registry

	mu sync.Mutex
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for backup ids and retention cutoffs.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegistry exports backup counters.
func WithRegistry(r *metrics.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// New creates a manager backing up sourceDir into cfg.BackupRoot. A zero
// retention means the regulatory default.
func New(sourceDir string, cfg model.BackupConfig, opts ...Option) (*Manager, error) {
	if sourceDir == "" {
		return nil, errclass.ErrConfigInvalid.WithMessage("audit directory must be set")
	}
	if cfg.BackupRoot == "" {
		return nil, errclass.ErrConfigInvalid.WithMessage("backup root must be set")
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = model.DefaultRetentionDays
	}
	if len(cfg.LogExtensions) == 0 {
		cfg.LogExtensions = DefaultLogExtensions
	}

	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve audit directory: %w", err)
	}
	root, err := filepath.Abs(cfg.BackupRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve backup root: %w", err)
	}
	cfg.BackupRoot = root
	if engine.IsWithin(root, src) {
		return nil, errclass.ErrConfigInvalid.WithMessagef("backup root %s must not be inside the audit directory %s", root, src)
	}

	m := &Manager{sourceDir: src, cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrGlobal(m.logger)
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() model.BackupConfig {
	return m.cfg
}

// SourceDir returns the live audit directory.
func (m *Manager) SourceDir() string {
	return m.sourceDir
}

// BackupDir returns the directory of one backup. Its checksum covers
// everything below it.
func (m *Manager) BackupDir(id model.BackupID) string {
	return filepath.Join(m.cfg.BackupRoot, string(id))
}

// DataDir returns the mirrored audit tree of one backup.
func (m *Manager) DataDir(id model.BackupID) string {
	return filepath.Join(m.BackupDir(id), DataDirName)
}

// MetadataPath returns the metadata file of one backup.
func (m *Manager) MetadataPath(id model.BackupID) string {
	return filepath.Join(m.cfg.BackupRoot, MetadataDirName, string(id)+".json")
}

// IsLogFile reports whether name has one of the configured log extensions.
func (m *Manager) IsLogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range m.cfg.LogExtensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// CreateBackup mirrors the audit directory into a new backup, compressing
// log files when enabled. Per-file failures are recorded in
// BackupStats.Errors and do not stop the walk. A cancelled context removes
// the partial backup and writes no metadata.
func (m *Manager) CreateBackup(ctx context.Context, cb progress.Callback) (*model.BackupStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, stats, err := m.create(ctx, model.BackupIDPrefix, m.cfg.CompressEnabled, false, cb)
	return stats, err
}

// CreatePreRestoreSnapshot takes an uncompressed safety copy of the live
// audit directory. Any per-file failure aborts it.
func (m *Manager) CreatePreRestoreSnapshot(ctx context.Context, cb progress.Callback) (*model.BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, _, err := m.create(ctx, model.PreRestoreIDPrefix, false, true, cb)
	return info, err
}

func (m *Manager) create(ctx context.Context, prefix string, compress, strict bool, cb progress.Callback) (*model.BackupInfo, *model.BackupStats, error) {
	start := time.Now()
	now := m.clock()

	if _, err := os.Stat(m.sourceDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errclass.ErrNotFound.WithMessagef("audit directory does not exist: %s", m.sourceDir)
		}
		return nil, nil, fmt.Errorf("stat audit directory: %w", err)
	}

	id, err := m.allocateID(prefix, now)
	if err != nil {
		return nil, nil, err
	}
	backupDir := m.BackupDir(id)
	logger := m.logger.With(zap.String("backup_id", string(id)))

	var plan engine.PlanFunc
	if compress {
		plan = func(rel string, info os.FileInfo) (string, engine.WriteFunc) {
			if !m.IsLogFile(rel) {
				return compression.StoredName(rel, false), nil
			}
			return compression.StoredName(rel, true), compression.CompressFile
		}
	}

	res, err := engine.Mirror(ctx, m.sourceDir, m.DataDir(id), engine.Options{
		Plan:            plan,
		ContinueOnError: !strict,
		Op:              progress.OpBackup,
		Progress:        cb,
	})
	if err != nil {
		os.RemoveAll(backupDir)
		m.registry.RecordBackup(false, time.Since(start), 0, 0, 0)
		logger.Error("backup failed", zap.Error(err))
		return nil, nil, fmt.Errorf("create backup %s: %w", id, err)
	}

	checksum, err := integrity.ComputeDirChecksum(backupDir)
	if err != nil {
		os.RemoveAll(backupDir)
		m.registry.RecordBackup(false, time.Since(start), 0, 0, 0)
		return nil, nil, fmt.Errorf("checksum backup %s: %w", id, err)
	}

	info := &model.BackupInfo{
		BackupID:   id,
		Timestamp:  model.FromTime(now),
		SourcePath: m.sourceDir,
		BackupPath: backupDir,
		FileCount:  res.Files,
		TotalSize:  res.BytesWritten,
		Compressed: compress,
		Checksum:   checksum,
	}
	if err := fsutil.WriteJSON(m.MetadataPath(id), info); err != nil {
		os.RemoveAll(backupDir)
		m.registry.RecordBackup(false, time.Since(start), 0, 0, 0)
		return nil, nil, fmt.Errorf("write backup metadata: %w", err)
	}

	stats := &model.BackupStats{
		BackupID:      id,
		FilesBackedUp: res.Files,
		OriginalBytes: res.BytesRead,
		StoredBytes:   res.BytesWritten,
	}
	if compress && res.BytesRead > 0 {
		stats.CompressionRatio = 1 - float64(res.BytesWritten)/float64(res.BytesRead)
	}
	for _, fe := range res.Errors {
		stats.Errors = append(stats.Errors, fe.Error())
		logger.Warn("file skipped during backup", zap.String("path", fe.Path), zap.Error(fe.Err))
	}
	elapsed := time.Since(start)
	stats.BackupDurationMs = elapsed.Milliseconds()

	m.registry.RecordBackup(true, elapsed, res.BytesRead, res.BytesWritten, len(res.Errors))
	logger.Info("backup created",
		zap.Int("files", res.Files),
		zap.Int64("original_bytes", res.BytesRead),
		zap.Int64("stored_bytes", res.BytesWritten),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", elapsed))
	return info, stats, nil
}

// allocateID derives an id from the clock, adding a numeric suffix when a
// backup already exists for the same second.
func (m *Manager) allocateID(prefix string, now time.Time) (model.BackupID, error) {
	base := model.NewBackupID(prefix, now)
	for n := 1; n < 1000; n++ {
		id := base
		if n > 1 {
			id = model.BackupID(fmt.Sprintf("%s-%d", base, n))
		}
		dirExists, err := fsutil.Exists(m.BackupDir(id))
		if err != nil {
			return "", err
		}
		metaExists, err := fsutil.Exists(m.MetadataPath(id))
		if err != nil {
			return "", err
		}
		if !dirExists && !metaExists {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free backup id for %s", base)
}

// LoadInfo reads the metadata of one backup.
func (m *Manager) LoadInfo(id model.BackupID) (*model.BackupInfo, error) {
	if err := pathutil.ValidateBackupID(string(id)); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.MetadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("backup not found: %s", id)
		}
		return nil, fmt.Errorf("read backup metadata: %w", err)
	}
	var info model.BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errclass.ErrValidation.WithMessagef("parse metadata for %s: %v", id, err)
	}
	return &info, nil
}

// ListBackups returns every readable backup, newest first. Unreadable
// metadata files are logged and skipped.
func (m *Manager) ListBackups() ([]*model.BackupInfo, error) {
	entries, err := os.ReadDir(filepath.Join(m.cfg.BackupRoot, MetadataDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata directory: %w", err)
	}

	var infos []*model.BackupInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := model.BackupID(strings.TrimSuffix(e.Name(), ".json"))
		info, err := m.LoadInfo(id)
		if err != nil {
			m.logger.Warn("skipping unreadable backup metadata", zap.String("backup_id", string(id)), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Timestamp != infos[j].Timestamp {
			return infos[i].Timestamp > infos[j].Timestamp
		}
		return infos[i].BackupID > infos[j].BackupID
	})
	return infos, nil
}

// ResolveID accepts an exact backup id or a prefix matching exactly one
// backup.
func (m *Manager) ResolveID(query string) (model.BackupID, error) {
	if query == "" {
		return "", errclass.ErrNameInvalid.WithMessage("backup id must not be empty")
	}
	if info, err := m.LoadInfo(model.BackupID(query)); err == nil {
		return info.BackupID, nil
	} else if !errors.Is(err, errclass.ErrNotFound) && !errors.Is(err, errclass.ErrNameInvalid) {
		return "", err
	}

	all, err := m.ListBackups()
	if err != nil {
		return "", err
	}
	var matches []model.BackupID
	for _, info := range all {
		if strings.HasPrefix(string(info.BackupID), query) {
			matches = append(matches, info.BackupID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errclass.ErrNotFound.WithMessagef("no backup matches %q", query)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, id := range matches {
			ids[i] = string(id)
		}
		return "", errclass.ErrNotFound.WithMessagef("ambiguous backup %q matches: %s", query, strings.Join(ids, ", "))
	}
}
