package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-steel/registry-cli/internal/abn"
)

var abnCmd = &cobra.Command{
	Use:   "abn <number>",
	Short: "Validate an Australian Business Number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		normalized := abn.Normalize(args[0])
		if !abn.Valid(normalized) {
			return eris.Errorf("invalid abn: %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), abn.Format(normalized))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(abnCmd)
}
