//go:build windows

package audit

import "os"

// Windows has no advisory flock; the writer's mutex serialises appends
// within the process.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
