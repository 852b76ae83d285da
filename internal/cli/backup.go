package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/internal/verify"
	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
)

var verifyAll bool

var backupCmd = &cobra.Command{
	Use:   "backup <command>",
	Short: "Create, verify and restore audit backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the audit directory",
	Long: `Back up every audit log under the audit directory into
<backup_root>/audit_backup_<unix-time>/ and record its checksum.

Log files are compressed when backup.compress_enabled is set. Files that
cannot be read are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.CreateBackup(cmd.Context(), progressCallback())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(stats)
		}
		fmt.Printf("Created backup %s\n", color.ID(stats.BackupID.String()))
		fmt.Printf("  Files:       %d\n", stats.FilesBackedUp)
		fmt.Printf("  Size:        %d -> %d bytes (ratio %.2f)\n",
			stats.OriginalBytes, stats.StoredBytes, stats.CompressionRatio)
		fmt.Printf("  Duration:    %dms\n", stats.BackupDurationMs)
		for _, e := range stats.Errors {
			fmt.Println(color.Warning("  skipped: " + e))
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		infos, err := c.ListBackups()
		if err != nil {
			return err
		}
		if jsonOutput {
			if infos == nil {
				infos = []*model.BackupInfo{}
			}
			return outputJSON(infos)
		}
		if len(infos) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		fmt.Println(color.Header(fmt.Sprintf("%-28s  %-20s  %6s  %12s  %s", "ID", "CREATED", "FILES", "BYTES", "COMPRESSED")))
		for _, info := range infos {
			fmt.Printf("%s  %-20s  %6d  %12d  %v\n",
				color.ID(fmt.Sprintf("%-28s", info.BackupID)),
				info.Timestamp.Time().Format(time.RFC3339),
				info.FileCount, info.TotalSize, info.Compressed)
		}
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify [<backup-id>]",
	Short: "Verify backup checksums",
	Long: `Recompute the checksum of a backup tree and compare it with the one
recorded when the backup was created.

Examples:
  auditvault backup verify audit_backup_1717243200
  auditvault backup verify audit_backup_17      # unique prefix
  auditvault backup verify --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verifyAll && len(args) == 0 {
			return errclass.ErrValidation.WithMessage("specify a backup id or --all")
		}

		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		var results []*verify.Result
		if verifyAll {
			results, err = c.VerifyAll()
			if err != nil {
				return err
			}
		} else {
			id, err := c.ResolveBackupID(args[0])
			if err != nil {
				return err
			}
			res, err := c.VerifyBackup(id)
			if err != nil {
				return err
			}
			results = []*verify.Result{res}
		}

		failed := 0
		for _, res := range results {
			if !res.Verified {
				failed++
			}
		}

		if jsonOutput {
			if results == nil {
				results = []*verify.Result{}
			}
			if err := outputJSON(results); err != nil {
				return err
			}
		} else {
			for _, res := range results {
				status := color.Success("OK")
				if !res.Verified {
					status = color.Error("FAILED") + "  " + res.Error
				}
				fmt.Printf("%s  %s\n", res.BackupID, status)
			}
		}

		if failed > 0 {
			return errclass.ErrChecksumMismatch.WithMessagef("%d of %d backups failed verification", failed, len(results))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Replace the audit directory with a backup",
	Long: `Restore a backup over the live audit directory.

The backup is verified first. The current audit directory is saved as a
pre_restore_<unix-time> backup, the backup is decoded into a staging
directory next to the live one, and the staging directory is then swapped
into place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.ResolveBackupID(args[0])
		if err != nil {
			return err
		}
		result, err := c.RestoreBackup(cmd.Context(), id, progressCallback())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		fmt.Printf("Restored backup %s (%d files, %d decoded) in %dms\n",
			color.ID(result.BackupID.String()), result.FilesRestored, result.FilesDecoded, result.RestoreDuration)
		if result.PreRestoreID != "" {
			fmt.Printf("  Previous state saved as %s\n", color.ID(result.PreRestoreID.String()))
		}
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		deleted, err := c.CleanupOldBackups()
		if jsonOutput {
			if jerr := outputJSON(map[string]int{"deleted": deleted}); jerr != nil && err == nil {
				err = jerr
			}
		} else {
			fmt.Printf("Deleted %d backups older than %d days\n", deleted, c.Config().Backup.RetentionDays)
		}
		return err
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete one backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.ResolveBackupID(args[0])
		if err != nil {
			return err
		}
		if err := c.DeleteBackup(id); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{"deleted": id.String()})
		}
		fmt.Printf("Deleted backup %s\n", color.ID(id.String()))
		return nil
	},
}

func init() {
	backupVerifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every backup")
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	rootCmd.AddCommand(backupCmd)
}
