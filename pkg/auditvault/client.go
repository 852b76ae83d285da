package auditvault

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/internal/audit"
	"github.com/auditvault/auditvault/internal/backup"
	"github.com/auditvault/auditvault/internal/doctor"
	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/internal/lock"
	"github.com/auditvault/auditvault/internal/project"
	"github.com/auditvault/auditvault/internal/restore"
	"github.com/auditvault/auditvault/internal/verify"
	"github.com/auditvault/auditvault/pkg/config"
	"github.com/auditvault/auditvault/pkg/fsutil"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/auditvault/auditvault/pkg/progress"
	"github.com/auditvault/auditvault/pkg/webhook"
)

// Options configures a Client. Zero values use the global logger, no
// metrics export and the wall clock.
type Options struct {
	Logger   *zap.Logger
	Registry *metrics.Registry
	Clock    func() time.Time
	// SkipIndexBuild leaves the index empty on Open instead of rebuilding
	// it from the log files.
	SkipIndexBuild bool
}

// Client provides audit operations on one project.
type Client struct {
	project  *project.Project
	logger   *zap.Logger
	registry *metrics.Registry

	perf     *audit.PerformanceLogger
	backups  *backup.Manager
	verifier *verify.Verifier
	restorer *restore.Restorer
	doctor   *doctor.Doctor
	notifier *webhook.Client
	locks    *lock.Manager

	opMu sync.Mutex
}

// Init creates a new project at path. A nil cfg uses the defaults.
func Init(path string, cfg *config.Config, opts Options) (*Client, error) {
	p, err := project.Init(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("auditvault init: %w", err)
	}
	opts.SkipIndexBuild = true
	return newClient(p, opts)
}

// Open opens the project at or above path.
func Open(path string, opts Options) (*Client, error) {
	p, err := project.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("auditvault open: %w", err)
	}
	return newClient(p, opts)
}

// OpenOrInit opens the project rooted at path, initialising it with the
// defaults if none exists there.
func OpenOrInit(path string, opts Options) (*Client, error) {
	if ok, _ := fsutil.Exists(filepath.Join(path, config.DirName)); ok {
		return Open(path, opts)
	}
	return Init(path, nil, opts)
}

func newClient(p *project.Project, opts Options) (*Client, error) {
	logger := logging.OrGlobal(opts.Logger)
	cfg := p.Config

	if cfg.BelowRegulatoryRetention() {
		logger.Warn("backup retention is below the 7-year regulatory default",
			zap.Uint32("retention_days", cfg.Backup.RetentionDays),
			zap.Int("default_days", model.DefaultRetentionDays))
	}

	auditOpts := []audit.Option{audit.WithLogger(logger), audit.WithRegistry(opts.Registry)}
	backupOpts := []backup.Option{backup.WithLogger(logger), backup.WithRegistry(opts.Registry)}
	if opts.Clock != nil {
		auditOpts = append(auditOpts, audit.WithClock(opts.Clock))
		backupOpts = append(backupOpts, backup.WithClock(opts.Clock))
	}

	perf, err := audit.NewPerformanceLogger(p.MainLog(), audit.Config{
		BufferSize:      cfg.Writer.BufferSize,
		FlushInterval:   cfg.Writer.FlushInterval,
		IndexingEnabled: cfg.Writer.IndexingEnabled,
	}, auditOpts...)
	if err != nil {
		return nil, err
	}

	mgr, err := backup.New(p.AuditDir(), model.BackupConfig{
		BackupRoot:      p.BackupRoot(),
		CompressEnabled: cfg.Backup.CompressEnabled,
		RetentionDays:   cfg.Backup.RetentionDays,
		LogExtensions:   cfg.Backup.LogExtensions,
	}, backupOpts...)
	if err != nil {
		return nil, err
	}

	verifier := verify.NewVerifier(mgr, logger, opts.Registry)
	locks := lock.NewManager(filepath.Join(p.BackupRoot(), lock.FileName), lock.DefaultTTL)
	if opts.Clock != nil {
		locks.SetClock(opts.Clock)
	}
	doc := doctor.NewDoctor(mgr, verifier, logger)
	doc.SetLock(locks)
	c := &Client{
		project:  p,
		logger:   logger,
		registry: opts.Registry,
		perf:     perf,
		backups:  mgr,
		verifier: verifier,
		restorer: restore.NewRestorer(mgr, logger, opts.Registry),
		doctor:   doc,
		notifier: webhook.NewClient(cfg.Webhooks, logger),
		locks:    locks,
	}

	if cfg.Writer.IndexingEnabled && !opts.SkipIndexBuild {
		if _, err := c.RebuildIndex(); err != nil {
			c.notifier.Close()
			return nil, err
		}
	}
	return c, nil
}

// Root returns the project root.
func (c *Client) Root() string { return c.project.Root }

// Config returns the loaded configuration.
func (c *Client) Config() *config.Config { return c.project.Config }

// AuditDir returns the live audit directory.
func (c *Client) AuditDir() string { return c.project.AuditDir() }

// Registry returns the metrics registry, or nil.
func (c *Client) Registry() *metrics.Registry { return c.registry }

// Log buffers one pre-formatted audit line.
func (c *Client) Log(line string) error {
	return c.perf.LogEntry(line)
}

// LogEvent formats and buffers one audit event.
func (c *Client) LogEvent(ev model.AuditEvent) error {
	line, err := ev.FormatLine()
	if err != nil {
		return err
	}
	return c.perf.LogEntry(line)
}

// Flush writes buffered entries to the main log.
func (c *Client) Flush() error {
	return c.perf.Flush()
}

// Search runs a combined indexed query, newest first.
func (c *Client) Search(q index.Query) []model.Timestamp {
	return c.perf.IndexedSearch(q)
}

// Index exposes the search index for per-dimension lookups.
func (c *Client) Index() *index.Index {
	return c.perf.Index()
}

// RebuildIndex re-indexes the main and daily logs from disk.
func (c *Client) RebuildIndex() (index.RebuildStats, error) {
	files, err := c.project.LogFiles()
	if err != nil {
		return index.RebuildStats{}, err
	}
	return c.perf.BuildIndex(files)
}

// Follow indexes lines appended to the audit logs by other processes until
// ctx is cancelled, calling onLine for each appended line. Lines this Client
// flushes are delivered too but were indexed when buffered, so they are not
// indexed twice. One Follow per Client at a time.
func (c *Client) Follow(ctx context.Context, onLine index.LineFunc) error {
	f, err := index.NewFollower(c.perf.Index(),
		[]string{c.project.AuditDir(), c.project.DailyDir()},
		c.backups.Config().LogExtensions, onLine, c.logger)
	if err != nil {
		return err
	}
	if c.project.Config.Writer.IndexingEnabled {
		c.perf.SetAppendHook(f.MarkOwn)
		defer c.perf.SetAppendHook(nil)
	}
	return f.Run(ctx)
}

// Metrics returns the writer and search counters.
func (c *Client) Metrics() model.PerformanceMetrics {
	return c.perf.Metrics()
}

// ResetMetrics zeroes the writer and search counters.
func (c *Client) ResetMetrics() {
	c.perf.ResetMetrics()
}

// CreateBackup flushes the writer and backs up the audit directory.
func (c *Client) CreateBackup(ctx context.Context, cb progress.Callback) (*model.BackupStats, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	release, err := c.acquire("backup")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.perf.Flush(); err != nil {
		return nil, fmt.Errorf("flush before backup: %w", err)
	}
	stats, err := c.backups.CreateBackup(ctx, cb)
	if err != nil {
		c.notify(webhook.Event{Event: webhook.EventBackupFailed, Error: err.Error()})
		return nil, err
	}
	c.notify(webhook.Event{
		Event:    webhook.EventBackupCreated,
		BackupID: stats.BackupID.String(),
		Metadata: map[string]any{
			"files_backed_up": stats.FilesBackedUp,
			"original_bytes":  stats.OriginalBytes,
			"stored_bytes":    stats.StoredBytes,
			"file_errors":     len(stats.Errors),
		},
	})
	return stats, nil
}

// ListBackups returns all backups, newest first.
func (c *Client) ListBackups() ([]*model.BackupInfo, error) {
	return c.backups.ListBackups()
}

// LoadBackup returns the metadata of one backup.
func (c *Client) LoadBackup(id model.BackupID) (*model.BackupInfo, error) {
	return c.backups.LoadInfo(id)
}

// ResolveBackupID expands a unique id prefix.
func (c *Client) ResolveBackupID(query string) (model.BackupID, error) {
	return c.backups.ResolveID(query)
}

// VerifyBackup recomputes and compares one backup's checksum.
func (c *Client) VerifyBackup(id model.BackupID) (*verify.Result, error) {
	res, err := c.verifier.VerifyBackup(id)
	if err != nil {
		return nil, err
	}
	c.notifyVerify(res)
	return res, nil
}

// VerifyAll verifies every backup.
func (c *Client) VerifyAll() ([]*verify.Result, error) {
	results, err := c.verifier.VerifyAll()
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		c.notifyVerify(res)
	}
	return results, nil
}

func (c *Client) notifyVerify(res *verify.Result) {
	if res.Verified {
		return
	}
	c.notify(webhook.Event{
		Event:    webhook.EventVerifyFailed,
		BackupID: res.BackupID.String(),
		Error:    res.Error,
		Metadata: map[string]any{"expected": res.Expected, "actual": res.Actual},
	})
}

// RestoreBackup flushes the writer, restores the backup into the live audit
// directory and rebuilds the index from the restored logs.
func (c *Client) RestoreBackup(ctx context.Context, id model.BackupID, cb progress.Callback) (*model.RestoreResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	release, err := c.acquire("restore")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.perf.Flush(); err != nil {
		return nil, fmt.Errorf("flush before restore: %w", err)
	}
	result, err := c.restorer.RestoreBackup(ctx, id, cb)
	if err != nil {
		c.notify(webhook.Event{Event: webhook.EventRestoreFailed, BackupID: id.String(), Error: err.Error()})
		return nil, err
	}
	c.notify(webhook.Event{
		Event:    webhook.EventRestoreComplete,
		BackupID: id.String(),
		Metadata: map[string]any{
			"pre_restore_id": result.PreRestoreID,
			"files_restored": result.FilesRestored,
		},
	})
	if _, err := c.RebuildIndex(); err != nil {
		return result, fmt.Errorf("rebuild index after restore: %w", err)
	}
	return result, nil
}

// CleanupOldBackups deletes backups older than the retention period.
func (c *Client) CleanupOldBackups() (int, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	release, err := c.acquire("cleanup")
	if err != nil {
		return 0, err
	}
	defer release()
	deleted, err := c.backups.CleanupOldBackups()
	if deleted > 0 || err != nil {
		ev := webhook.Event{
			Event:    webhook.EventRetentionCleanup,
			Metadata: map[string]any{"deleted": deleted, "cutoff": c.backups.Cutoff()},
		}
		if err != nil {
			ev.Error = err.Error()
		}
		c.notify(ev)
	}
	return deleted, err
}

// DeleteBackup removes one backup and its metadata regardless of age.
func (c *Client) DeleteBackup(id model.BackupID) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	release, err := c.acquire("delete")
	if err != nil {
		return err
	}
	defer release()
	return c.backups.Delete(id)
}

// Check inspects the audit directory and backup root for leftovers of
// interrupted operations. Strict also verifies every backup checksum.
func (c *Client) Check(strict bool) (*doctor.Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.doctor.Check(strict)
}

// Repair removes or rolls back what Check reports as repairable.
func (c *Client) Repair() ([]doctor.Finding, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	release, err := c.acquire("repair")
	if err != nil {
		return nil, err
	}
	defer release()
	return c.doctor.Repair()
}

// acquire takes the backup root lock for one operation.
func (c *Client) acquire(purpose string) (func(), error) {
	rec, err := c.locks.Acquire(purpose)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := c.locks.Release(rec); err != nil {
			c.logger.Warn("release backup lock", zap.Error(err))
		}
	}, nil
}

func (c *Client) notify(ev webhook.Event) {
	ev.ProjectRoot = c.project.Root
	if err := c.notifier.Send(ev, true); err != nil {
		c.logger.Warn("webhook notification failed", zap.String("event", string(ev.Event)), zap.Error(err))
	}
}

// Close flushes buffered entries and waits for queued webhook deliveries.
func (c *Client) Close() error {
	err := c.perf.Close()
	c.notifier.Close()
	return err
}
