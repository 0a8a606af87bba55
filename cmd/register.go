package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian-steel/registry-cli/internal/registry"
)

var registerIn registry.RegisterInput

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a company from the command line",
	Long:  "Runs the same validation and duplicate checks as the registration form. Duplicate candidates print instead of creating; pass --acknowledge-duplicates to proceed past name matches.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		out, err := initService(st).Register(ctx, registerIn)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}

		if !out.Created {
			switch {
			case out.ABNMatch != nil:
				fmt.Fprintln(cmd.OutOrStdout(), "abn already registered; submit an access request instead")
			case len(out.NameMatches) > 0:
				fmt.Fprintln(cmd.OutOrStdout(), "similar companies found; re-run with --acknowledge-duplicates to register anyway")
			}
		}
		return nil
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&registerIn.Name, "name", "", "company name (required)")
	f.StringVar(&registerIn.ABN, "abn", "", "australian business number")
	f.StringVar(&registerIn.Street, "street", "", "street address")
	f.StringVar(&registerIn.City, "city", "", "city")
	f.StringVar(&registerIn.State, "state", "", "state")
	f.StringVar(&registerIn.Postcode, "postcode", "", "postcode")
	f.StringVar(&registerIn.Country, "country", "Australia", "country")
	f.StringVar(&registerIn.ContactName, "contact-name", "", "primary contact name")
	f.StringVar(&registerIn.ContactEmail, "contact-email", "", "primary contact email (required)")
	f.StringVar(&registerIn.ContactPhone, "contact-phone", "", "primary contact phone")
	f.BoolVar(&registerIn.AcknowledgeDuplicates, "acknowledge-duplicates", false, "register despite name-match candidates")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("contact-email")
	rootCmd.AddCommand(registerCmd)
}
