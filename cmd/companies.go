package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/store"
)

var (
	companiesStatus string
	companiesLimit  int
	companiesOffset int
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Inspect and review registered companies",
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		companies, err := st.ListCompanies(ctx, store.CompanyFilter{
			Status: model.CompanyStatus(companiesStatus),
			Limit:  companiesLimit,
			Offset: companiesOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(companies)
	},
}

var companiesShowCmd = &cobra.Command{
	Use:   "show <company-id>",
	Short: "Show one company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		company, err := st.GetCompany(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(company)
	},
}

var companiesApproveCmd = &cobra.Command{
	Use:   "approve <company-id>",
	Short: "Approve a pending company",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decideCompany(cmd, args[0], true) },
}

var companiesRejectCmd = &cobra.Command{
	Use:   "reject <company-id>",
	Short: "Reject a pending company",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decideCompany(cmd, args[0], false) },
}

func decideCompany(cmd *cobra.Command, id string, approve bool) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	svc := initService(st)
	if approve {
		err = svc.ApproveCompany(ctx, id)
	} else {
		err = svc.RejectCompany(ctx, id)
	}
	if err != nil {
		return err
	}

	zap.L().Info("company reviewed", zap.String("company_id", id), zap.Bool("approved", approve))
	return nil
}

func init() {
	companiesListCmd.Flags().StringVar(&companiesStatus, "status", "", "filter by status (pending, approved, rejected)")
	companiesListCmd.Flags().IntVar(&companiesLimit, "limit", 50, "maximum rows")
	companiesListCmd.Flags().IntVar(&companiesOffset, "offset", 0, "rows to skip")

	companiesCmd.AddCommand(companiesListCmd)
	companiesCmd.AddCommand(companiesShowCmd)
	companiesCmd.AddCommand(companiesApproveCmd)
	companiesCmd.AddCommand(companiesRejectCmd)
	rootCmd.AddCommand(companiesCmd)
}
