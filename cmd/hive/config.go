package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Config prints the configuration after merging the built-in defaults, the
global file, the project files and HIVE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		return writeValue(cmd.OutOrStdout(), map[string]any(a.doc))
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print one value, e.g. worktrees.parent_dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		v, ok := a.doc.Lookup(args[0])
		if !ok {
			return fmt.Errorf("no config value at %q", args[0])
		}
		return writeValue(cmd.OutOrStdout(), v)
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

// writeValue prints scalars bare and everything else as YAML.
func writeValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case nil:
		_, err := fmt.Fprintln(w)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}
