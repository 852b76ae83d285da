package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/logging"
)

var (
	jsonOutput bool
	noColor    bool
	projectDir string

	rootCmd = &cobra.Command{
		Use:   "auditvault",
		Short: "auditvault - tamper-evident audit log storage",
		Long: `auditvault writes append-only audit logs through a buffered writer,
keeps an in-memory search index over them, and takes checksummed,
optionally compressed backups that can be verified and restored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "project directory (default: discovered from the working directory)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logging.Sync()
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
