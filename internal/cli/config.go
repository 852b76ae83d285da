package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auditvault/auditvault/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage auditvault configuration",
	Long: `Manage auditvault configuration stored in .auditvault/config.yaml.

Environment variables (AUDITVAULT_*) override file values when loaded.

Available keys:
  ` + strings.Join(config.Keys, "\n  "),
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := requireProject()
		if err != nil {
			return err
		}
		if jsonOutput {
			values := make(map[string]string, len(config.Keys))
			for _, key := range config.Keys {
				values[key], _ = p.Config.Get(key)
			}
			return outputJSON(values)
		}

		fmt.Println("# auditvault configuration")
		fmt.Printf("# Location: %s\n\n", config.Path(p.Root))
		for _, key := range config.Keys {
			v, _ := p.Config.Get(key)
			if v == "" {
				v = "(not set)"
			}
			fmt.Printf("%s: %s\n", key, v)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := requireProject()
		if err != nil {
			return err
		}
		v, err := p.Config.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{args[0]: v})
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .auditvault/config.yaml.

Examples:
  auditvault config set backup.retention_days 3650
  auditvault config set backup.compress_enabled false
  auditvault config set writer.flush_interval 2s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := requireProject()
		if err != nil {
			return err
		}
		key, value := args[0], args[1]
		if err := p.Config.Set(key, value); err != nil {
			return err
		}
		if err := config.Save(p.Root, p.Config); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{key: value})
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
