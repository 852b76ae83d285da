// Package project locates and initialises an auditvault project: a root
// directory holding .auditvault/config.yaml, the live audit directory and
// the backup root.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auditvault/auditvault/pkg/config"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/fsutil"
)

// File and directory names inside the audit directory.
const (
	MainLogName  = "audit.log"
	DailyDirName = "daily"
)

// Project is an initialised project root with its loaded configuration.
type Project struct {
	Root   string
	Config *config.Config
}

// Init creates the project layout at root and writes cfg (or the defaults)
// to the config file. It fails if root is already a project.
func Init(root string, cfg *config.Config) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	exists, err := fsutil.Exists(config.Path(abs))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errclass.ErrValidation.WithMessagef("project already initialised at %s", abs)
	}

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Project{Root: abs, Config: cfg}
	dirs := []string{
		filepath.Join(abs, config.DirName),
		p.AuditDir(),
		p.DailyDir(),
		filepath.Join(p.BackupRoot(), "metadata"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := config.Save(abs, cfg); err != nil {
		return nil, err
	}
	if err := fsutil.FsyncDir(abs); err != nil {
		return nil, fmt.Errorf("fsync project root: %w", err)
	}
	return p, nil
}

// Open loads the project rooted exactly at root.
func Open(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if info, err := os.Stat(filepath.Join(abs, config.DirName)); err != nil || !info.IsDir() {
		return nil, errclass.ErrNotFound.WithMessagef("no auditvault project at %s", abs)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	return &Project{Root: abs, Config: cfg}, nil
}

// Discover walks up from cwd to the nearest directory containing .auditvault/.
func Discover(cwd string) (*Project, error) {
	path, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	for {
		if info, err := os.Stat(filepath.Join(path, config.DirName)); err == nil && info.IsDir() {
			return Open(path)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, errclass.ErrNotFound.WithMessage("no auditvault project found (no .auditvault/ in parent directories)")
		}
		path = parent
	}
}

// AuditDir returns the live audit directory.
func (p *Project) AuditDir() string {
	return config.Resolve(p.Root, p.Config.AuditDir)
}

// BackupRoot returns the backup root.
func (p *Project) BackupRoot() string {
	return config.Resolve(p.Root, p.Config.Backup.Root)
}

// MainLog returns the append log written by the buffered writer.
func (p *Project) MainLog() string {
	return filepath.Join(p.AuditDir(), MainLogName)
}

// DailyDir returns the directory of rotated daily logs.
func (p *Project) DailyDir() string {
	return filepath.Join(p.AuditDir(), DailyDirName)
}

// LogFiles lists the main log followed by the daily logs in name order.
// Files that do not exist are omitted.
func (p *Project) LogFiles() ([]string, error) {
	var files []string
	if ok, err := fsutil.Exists(p.MainLog()); err != nil {
		return nil, err
	} else if ok {
		files = append(files, p.MainLog())
	}

	entries, err := os.ReadDir(p.DailyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, fmt.Errorf("read daily logs: %w", err)
	}
	var daily []string
	for _, e := range entries {
		if e.IsDir() || !p.isLogFile(e.Name()) {
			continue
		}
		daily = append(daily, filepath.Join(p.DailyDir(), e.Name()))
	}
	sort.Strings(daily)
	return append(files, daily...), nil
}

func (p *Project) isLogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range p.Config.Backup.LogExtensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
