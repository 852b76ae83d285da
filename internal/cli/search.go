package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/color"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
)

var (
	searchQuery index.Query
	searchLimit int

	tailUser   string
	tailAction string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the audit index",
	Long: `Search the in-memory index built from the audit logs.

Filters are combined: only timestamps matching every given filter are
returned, newest first.

Examples:
  auditvault search --user alice
  auditvault search --user alice --action login --date 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchQuery.IsEmpty() {
			return errclass.ErrValidation.WithMessage("at least one of --user, --action, --entity or --date is required")
		}
		if searchQuery.Date != "" {
			if _, err := time.Parse(model.DateLayout, searchQuery.Date); err != nil {
				return errclass.ErrValidation.WithMessagef("--date must be YYYY-MM-DD, got %q", searchQuery.Date)
			}
		}

		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		results := c.Search(searchQuery)
		if searchLimit > 0 && len(results) > searchLimit {
			results = results[:searchLimit]
		}

		if jsonOutput {
			return outputJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No matching entries.")
			return nil
		}
		for _, ts := range results {
			fmt.Printf("%d  %s\n", ts, color.Dim(ts.Time().Format(time.RFC3339)))
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <command>",
	Short: "Manage the search index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the search index from the audit logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.RebuildIndex()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(stats)
		}
		fmt.Printf("Indexed %d of %d lines from %d files (%d skipped)\n",
			stats.Indexed, stats.Lines, stats.Files, stats.Skipped)
		for _, dim := range []index.Dimension{index.ByUser, index.ByAction, index.ByEntity, index.ByDate} {
			fmt.Printf("  %-7s %d keys\n", dim, len(c.Index().Keys(dim)))
		}
		return nil
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the audit logs",
	Long: `Print lines appended to the audit logs by any process, indexing them
as they arrive, until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()

		enc := json.NewEncoder(os.Stdout)
		return c.Follow(cmd.Context(), func(path, line string, fields model.LogFields, ok bool) {
			if tailUser != "" && (!ok || !strings.EqualFold(fields.UserID, tailUser)) {
				return
			}
			if tailAction != "" && (!ok || !strings.EqualFold(fields.Action, tailAction)) {
				return
			}
			if jsonOutput {
				_ = enc.Encode(map[string]any{"file": path, "line": line, "indexed": ok})
				return
			}
			fmt.Println(line)
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery.User, "user", "", "filter by user_id")
	searchCmd.Flags().StringVar(&searchQuery.Action, "action", "", "filter by action")
	searchCmd.Flags().StringVar(&searchQuery.Entity, "entity", "", "filter by entity_id")
	searchCmd.Flags().StringVar(&searchQuery.Date, "date", "", "filter by UTC day (YYYY-MM-DD)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (0 = all)")

	tailCmd.Flags().StringVar(&tailUser, "user", "", "only show lines for this user_id")
	tailCmd.Flags().StringVar(&tailAction, "action", "", "only show lines with this action")

	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(tailCmd)
}
