package model

import (
	"fmt"
	"strings"
	"time"
)

// BackupID identifies a backup directory and its metadata file.
type BackupID string

// Backup ID prefixes.
const (
	BackupIDPrefix     = "audit_backup_"
	PreRestoreIDPrefix = "pre_restore_"
)

// NewBackupID derives a backup id from the Unix time of t.
func NewBackupID(prefix string, t time.Time) BackupID {
	return BackupID(fmt.Sprintf("%s%d", prefix, t.Unix()))
}

// String returns the id as a string.
func (id BackupID) String() string {
	return string(id)
}

// IsPreRestore reports whether the id names a safety snapshot taken by restore.
func (id BackupID) IsPreRestore() bool {
	return strings.HasPrefix(string(id), PreRestoreIDPrefix)
}

// BackupConfig is fixed for the lifetime of a backup manager.
type BackupConfig struct {
	BackupRoot      string   `json:"backup_root"`
	CompressEnabled bool     `json:"compress_enabled"`
	RetentionDays   uint32   `json:"retention_days"`
	LogExtensions   []string `json:"log_extensions,omitempty"`
}

// BackupInfo is persisted as backups/audit/metadata/<backup_id>.json.
// It is written once and only removed by retention cleanup.
type BackupInfo struct {
	BackupID   BackupID  `json:"backup_id"`
	Timestamp  Timestamp `json:"timestamp"`
	SourcePath string    `json:"source_path"`
	BackupPath string    `json:"backup_path"`
	FileCount  int       `json:"file_count"`
	TotalSize  int64     `json:"total_size"`
	Compressed bool      `json:"compressed"`
	Checksum   HashValue `json:"checksum"`
}

// BackupStats summarises one CreateBackup run.
type BackupStats struct {
	BackupID         BackupID `json:"backup_id"`
	FilesBackedUp    int      `json:"files_backed_up"`
	OriginalBytes    int64    `json:"original_bytes"`
	StoredBytes      int64    `json:"stored_bytes"`
	CompressionRatio float64  `json:"compression_ratio"`
	BackupDurationMs int64    `json:"backup_duration_ms"`
	Errors           []string `json:"errors,omitempty"`
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	BackupID        BackupID `json:"backup_id"`
	PreRestoreID    BackupID `json:"pre_restore_id,omitempty"`
	FilesRestored   int      `json:"files_restored"`
	FilesDecoded    int      `json:"files_decoded"`
	RestoreDuration int64    `json:"restore_duration_ms"`
}

// PerformanceMetrics is a point-in-time copy of the writer/index counters.
type PerformanceMetrics struct {
	TotalOperations int64   `json:"total_operations"`
	BufferedWrites  int64   `json:"buffered_writes"`
	FlushedBatches  int64   `json:"flushed_batches"`
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	IndexSearches   int64   `json:"index_searches"`
	AvgWriteTimeMs  float64 `json:"avg_write_time_ms"`
	AvgSearchTimeMs float64 `json:"avg_search_time_ms"`
}
