// Package progress reports per-file progress for backup and restore runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Callback receives progress updates. Total is zero when unknown.
type Callback func(op string, current, total int, item string)

// Noop discards progress updates.
func Noop(op string, current, total int, item string) {}

// Op names reported to callbacks.
const (
	OpBackup  = "backup"
	OpRestore = "restore"
	OpVerify  = "verify"
	OpCleanup = "cleanup"
)

// Tracker counts completed items of one operation and forwards each step
// to a callback. Safe for concurrent use.
type Tracker struct {
	op    string
	total int

	mu      sync.Mutex
	current int
	cb      Callback
}

// New returns a tracker for op. A nil callback is replaced with Noop.
func New(op string, total int, cb Callback) *Tracker {
	if cb == nil {
		cb = Noop
	}
	return &Tracker{op: op, total: total, cb: cb}
}

// Step records one completed item.
func (t *Tracker) Step(item string) {
	t.mu.Lock()
	t.current++
	current := t.current
	t.mu.Unlock()
	t.cb(t.op, current, t.total, item)
}

// Done reports completion. If the total was unknown it becomes the count.
func (t *Tracker) Done() {
	t.mu.Lock()
	if t.total <= 0 {
		t.total = t.current
	}
	t.current = t.total
	current, total := t.current, t.total
	t.mu.Unlock()
	t.cb(t.op, current, total, "")
}

// Current returns the number of recorded steps.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Terminal renders a single-line progress bar.
type Terminal struct {
	w       io.Writer
	mu      sync.Mutex
	lastLen int
}

// NewTerminal writes progress to w, typically os.Stderr.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Callback returns a Callback that redraws the bar on every update.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, item string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.render(op, current, total, item)
		if item == "" && total > 0 && current >= total {
			fmt.Fprintln(t.w)
			t.lastLen = 0
		}
	}
}

func (t *Terminal) render(op string, current, total int, item string) {
	const width = 30

	var line string
	if total > 0 {
		filled := width * current / total
		if filled > width {
			filled = width
		}
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
		line = fmt.Sprintf("%s [%s] %d/%d", op, bar, current, total)
	} else {
		line = fmt.Sprintf("%s... %d items", op, current)
	}
	if item != "" {
		line += " " + item
	}

	pad := ""
	if t.lastLen > len(line) {
		pad = strings.Repeat(" ", t.lastLen-len(line))
	}
	fmt.Fprint(t.w, "\r"+line+pad)
	t.lastLen = len(line)
}
