package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/auditvault"
	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
)

var (
	logUser    string
	logAction  string
	logEntity  string
	logDetails []string
)

var logCmd = &cobra.Command{
	Use:   "log [<line>...]",
	Short: "Append audit entries",
	Long: `Append audit entries to the main audit log.

Each argument is written as one line. With no arguments (or "-") lines are
read from stdin. With --user and --action a JSON entry is built instead.

Examples:
  auditvault log '{"user_id":"alice","action":"login","timestamp":1704067200}'
  auditvault log --user alice --action delete --entity doc-7 --detail reason=expired
  tail -f app.jsonl | auditvault log -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		n, logErr := writeEntries(c, args, cmd.InOrStdin())
		if err := c.Close(); err != nil && logErr == nil {
			logErr = err
		}
		if logErr != nil {
			return logErr
		}

		if jsonOutput {
			return outputJSON(map[string]int{"logged": n})
		}
		fmt.Printf("Logged %d entries\n", n)
		return nil
	},
}

func writeEntries(c *auditvault.Client, args []string, stdin io.Reader) (int, error) {
	if logUser != "" || logAction != "" {
		if len(args) > 0 {
			return 0, errclass.ErrValidation.WithMessage("cannot combine line arguments with --user/--action")
		}
		ev := model.AuditEvent{
			UserID:    logUser,
			Action:    logAction,
			EntityID:  logEntity,
			Timestamp: time.Now(),
		}
		if len(logDetails) > 0 {
			ev.Details = make(map[string]any, len(logDetails))
			for _, kv := range logDetails {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return 0, errclass.ErrValidation.WithMessagef("detail %q must be key=value", kv)
				}
				ev.Details[k] = v
			}
		}
		if err := c.LogEvent(ev); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		n := 0
		sc := bufio.NewScanner(stdin)
		sc.Buffer(make([]byte, 64*1024), index.MaxLineSize+1)
		for sc.Scan() {
			line := sc.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Log(line); err != nil {
				return n, err
			}
			n++
		}
		if err := sc.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return n, errclass.ErrValidation.WithMessagef("audit entry on stdin must be shorter than %d bytes", index.MaxLineSize)
			}
			return n, fmt.Errorf("read stdin: %w", err)
		}
		return n, nil
	}

	for i, line := range args {
		if err := c.Log(line); err != nil {
			return i, err
		}
	}
	return len(args), nil
}

func init() {
	logCmd.Flags().StringVar(&logUser, "user", "", "user_id of a generated entry")
	logCmd.Flags().StringVar(&logAction, "action", "", "action of a generated entry")
	logCmd.Flags().StringVar(&logEntity, "entity", "", "entity_id of a generated entry")
	logCmd.Flags().StringArrayVar(&logDetails, "detail", nil, "extra key=value field (repeatable)")
	rootCmd.AddCommand(logCmd)
}
