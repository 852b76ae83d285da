package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/auditvault/auditvault/internal/project"
	"github.com/auditvault/auditvault/pkg/auditvault"
	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/metrics"
	"github.com/auditvault/auditvault/pkg/progress"
)

// startDir is where project discovery begins: --dir, else the working directory.
func startDir() (string, error) {
	if projectDir != "" {
		return projectDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot get current directory: %w", err)
	}
	return cwd, nil
}

// requireProject discovers the project and installs its configured logger
// as the global one.
func requireProject() (*project.Project, error) {
	dir, err := startDir()
	if err != nil {
		return nil, err
	}
	p, err := project.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("not an auditvault project (run 'auditvault init' first): %w", err)
	}
	logger, err := logging.New(logging.Config{
		Level:  p.Config.Logging.Level,
		Format: p.Config.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(logger)
	return p, nil
}

// requireClient opens the discovered project. Callers must Close the client
// so buffered entries reach disk.
func requireClient() (*auditvault.Client, error) {
	p, err := requireProject()
	if err != nil {
		return nil, err
	}
	return auditvault.Open(p.Root, auditvault.Options{
		Logger:   logging.L(),
		Registry: metrics.Default(),
	})
}

// progressCallback draws a progress bar on stderr when it is a terminal and
// JSON output is off.
func progressCallback() progress.Callback {
	if jsonOutput || !term.IsTerminal(int(os.Stderr.Fd())) {
		return progress.Noop
	}
	return progress.NewTerminal(os.Stderr).Callback()
}

func fmtErr(format string, args ...any) {
	prefix := "auditvault: "
	if color.Enabled() {
		prefix = color.Error("auditvault:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
