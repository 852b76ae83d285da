package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/internal/doctor"
	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/errclass"
)

var (
	doctorStrict bool
	doctorRepair bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the project for interrupted operations and corruption",
	Long: `Check the audit directory and backup root.

Detects staging and parked directories left by an interrupted restore,
backup directories without metadata, metadata without backup directories,
stray temp files and stale backup root locks. With --strict every backup checksum is recomputed.
With --repair repairable findings are cleaned up, and an audit directory
parked by a crashed restore is moved back into place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if doctorRepair {
			repaired, err := c.Repair()
			if jsonOutput {
				if repaired == nil {
					repaired = []doctor.Finding{}
				}
				if jerr := outputJSON(repaired); jerr != nil && err == nil {
					err = jerr
				}
			} else {
				for _, f := range repaired {
					fmt.Printf("%s %s\n", color.Success("repaired"), f.Description)
				}
				fmt.Printf("Repaired %d findings\n", len(repaired))
			}
			return err
		}

		result, err := c.Check(doctorStrict)
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else {
			for _, f := range result.Findings {
				fmt.Printf("[%s] %s: %s\n", severity(f.Severity), f.Category, f.Description)
				if f.Path != "" {
					fmt.Printf("  %s\n", color.Dim(f.Path))
				}
			}
			if result.Healthy {
				fmt.Println(color.Success("healthy"))
			}
		}
		if !result.Healthy {
			return errclass.ErrValidation.WithMessagef("%d findings, project is not healthy", len(result.Findings))
		}
		return nil
	},
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return s
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "also verify every backup checksum")
	doctorCmd.Flags().BoolVar(&doctorRepair, "repair", false, "repair what can be repaired")
	rootCmd.AddCommand(doctorCmd)
}
