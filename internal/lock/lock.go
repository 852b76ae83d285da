// Package lock provides a lease lock file that serialises backup, restore
// and retention runs across processes sharing one backup root.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/fsutil"
)

// FileName is the lock file created in the backup root.
const FileName = ".lock"

// DefaultTTL bounds how long a crashed holder blocks other processes.
const DefaultTTL = time.Hour

// State is the observed state of the lock file.
type State string

const (
	StateFree    State = "free"
	StateHeld    State = "held"
	StateExpired State = "expired"
)

// Record is the JSON content of the lock file.
type Record struct {
	Holder     string    `json:"holder"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	Purpose    string    `json:"purpose"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the lease has run out at now.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Record) String() string {
	return fmt.Sprintf("pid %d on %s (%s, since %s)", r.PID, r.Host, r.Purpose, r.AcquiredAt.Format(time.RFC3339))
}

// Manager acquires and releases one lock file.
type Manager struct {
	path  string
	ttl   time.Duration
	clock func() time.Time
	mu    sync.Mutex
}

// NewManager creates a manager for the lock file at path. A non-positive
// ttl uses DefaultTTL.
func NewManager(path string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{path: path, ttl: ttl, clock: time.Now}
}

// SetClock replaces the wall clock.
func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Path returns the lock file path.
func (m *Manager) Path() string {
	return m.path
}

// Acquire takes the lock. A lock whose lease has expired, or whose file is
// unreadable, is taken over; a live lock yields ErrLocked.
func (m *Manager) Acquire(purpose string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	rec := m.newRecord(purpose)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		_, werr := file.Write(data)
		if werr == nil {
			werr = file.Sync()
		}
		if cerr := file.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(m.path)
			return nil, fmt.Errorf("write lock: %w", werr)
		}
		return rec, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	held, err := m.read()
	if err == nil && !held.IsExpired(m.clock()) {
		return nil, errclass.ErrLocked.WithMessagef("backup root is locked by %s", held)
	}

	// Take over the stale lock, then confirm no other process did the same.
	if err := fsutil.AtomicWrite(m.path, data, 0644); err != nil {
		return nil, fmt.Errorf("take over stale lock: %w", err)
	}
	current, err := m.read()
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if current.Holder != rec.Holder {
		return nil, errclass.ErrLocked.WithMessagef("backup root is locked by %s", current)
	}
	return rec, nil
}

// Release removes the lock if rec still holds it.
func (m *Manager) Release(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if current.Holder != rec.Holder {
		return errclass.ErrLocked.WithMessagef("lock was taken over by %s", current)
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Status returns the current lock state. An unreadable lock file reports
// as expired.
func (m *Manager) Status() (State, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.read()
	switch {
	case os.IsNotExist(err):
		return StateFree, nil, nil
	case err != nil:
		if _, statErr := os.Stat(m.path); statErr != nil {
			return StateFree, nil, fmt.Errorf("read lock: %w", err)
		}
		return StateExpired, nil, nil
	case rec.IsExpired(m.clock()):
		return StateExpired, rec, nil
	default:
		return StateHeld, rec, nil
	}
}

// Break removes the lock file regardless of holder.
func (m *Manager) Break() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

func (m *Manager) newRecord(purpose string) *Record {
	host, _ := os.Hostname()
	now := m.clock().UTC()
	return &Record{
		Holder:     uuid.NewString(),
		PID:        os.Getpid(),
		Host:       host,
		Purpose:    purpose,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
}

func (m *Manager) read() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}
