// Package color styles CLI output with ANSI escapes. It honours NO_COLOR
// (https://no-color.org/) and TERM=dumb.
package color

import (
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	once    sync.Once
	enabled bool
)

// Init decides whether output is colored. Only the first call has effect;
// Enable and Disable override it afterwards.
func Init(noColorFlag bool) {
	once.Do(func() {
		_, noColor := os.LookupEnv("NO_COLOR")
		on := !noColor && os.Getenv("TERM") != "dumb" && !noColorFlag
		mu.Lock()
		enabled = on
		mu.Unlock()
	})
}

// Enabled reports whether color output is on.
func Enabled() bool {
	Init(false)
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Enable turns color output on.
func Enable() { set(true) }

// Disable turns color output off.
func Disable() { set(false) }

func set(on bool) {
	Init(false)
	mu.Lock()
	enabled = on
	mu.Unlock()
}

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + reset
}

// Success renders s in green.
func Success(s string) string { return wrap(green, s) }

// Error renders s in red.
func Error(s string) string { return wrap(red, s) }

// Warning renders s in yellow.
func Warning(s string) string { return wrap(yellow, s) }

// ID renders a backup id in cyan.
func ID(s string) string { return wrap(cyan, s) }

// Header renders s in bold.
func Header(s string) string { return wrap(bold, s) }

// Dim renders secondary information.
func Dim(s string) string { return wrap(dim, s) }
