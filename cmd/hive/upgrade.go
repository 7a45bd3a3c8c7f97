package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/hive/internal/update"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade hive to the latest release",
	Long:  `Downloads the latest GitHub release and replaces the running binary.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current version: %s\n", version)
		fmt.Fprintln(out, "Checking for updates...")

		latest, err := update.Update(cmd.Context(), version)
		if errors.Is(err, update.ErrUpToDate) {
			fmt.Fprintln(out, "Already up to date.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated to %s\n", latest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
