package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/pkg/auditvault"
	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/config"
	"github.com/auditvault/auditvault/pkg/model"
)

var (
	initBackupRoot    string
	initNoCompress    bool
	initRetentionDays uint32
)

var initCmd = &cobra.Command{
	Use:   "init [<dir>]",
	Short: "Initialize a new auditvault project",
	Long: `Initialize a new auditvault project in <dir> (default: current directory).

This creates:
  - .auditvault/config.yaml with the project configuration
  - audit/ and audit/daily/ for the live audit logs
  - backups/audit/metadata/ for backup records`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := startDir()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			dir = args[0]
		}

		cfg := config.Default()
		if initBackupRoot != "" {
			cfg.Backup.Root = initBackupRoot
		}
		if initNoCompress {
			cfg.Backup.CompressEnabled = false
		}
		if cmd.Flags().Changed("retention-days") {
			cfg.Backup.RetentionDays = initRetentionDays
		}

		c, err := auditvault.Init(dir, cfg, auditvault.Options{})
		if err != nil {
			return err
		}
		defer c.Close()

		if jsonOutput {
			return outputJSON(map[string]any{
				"root":        c.Root(),
				"audit_dir":   c.AuditDir(),
				"backup_root": config.Resolve(c.Root(), c.Config().Backup.Root),
			})
		}
		fmt.Printf("Initialized auditvault project in %s\n", color.Success(c.Root()))
		fmt.Printf("  Audit logs: %s\n", c.AuditDir())
		fmt.Printf("  Backups:    %s\n", config.Resolve(c.Root(), c.Config().Backup.Root))
		if c.Config().BelowRegulatoryRetention() {
			fmt.Println(color.Warning(fmt.Sprintf("  Retention of %d days is below the %d-day regulatory default",
				c.Config().Backup.RetentionDays, model.DefaultRetentionDays)))
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initBackupRoot, "backup-root", "", "backup directory, relative to the project root")
	initCmd.Flags().BoolVar(&initNoCompress, "no-compress", false, "store backups uncompressed")
	initCmd.Flags().Uint32Var(&initRetentionDays, "retention-days", model.DefaultRetentionDays, "days to keep backups")
	rootCmd.AddCommand(initCmd)
}
