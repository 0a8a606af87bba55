package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Probe the duplicate matchers",
}

var matchNameCmd = &cobra.Command{
	Use:   "name <company name>",
	Short: "Find companies with similar names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		candidates := initService(st).MatchName(ctx, strings.Join(args, " "))
		if len(candidates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	},
}

var matchABNCmd = &cobra.Command{
	Use:   "abn <number>",
	Short: "Find the company holding an ABN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		company := initService(st).MatchABN(ctx, args[0])
		if company == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no match")
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(company)
	},
}

func init() {
	matchCmd.AddCommand(matchNameCmd)
	matchCmd.AddCommand(matchABNCmd)
	rootCmd.AddCommand(matchCmd)
}
