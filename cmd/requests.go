package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/registry"
	"github.com/meridian-steel/registry-cli/internal/store"
)

var (
	requestsStatus    string
	requestsCompanyID string
	requestsDecidedBy string
	requestIn         registry.AccessRequestInput
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Manage access requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		requests, err := st.ListAccessRequests(ctx, store.RequestFilter{
			Status:    model.RequestStatus(requestsStatus),
			CompanyID: requestsCompanyID,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(requests)
	},
}

var requestsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an access request against an existing company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		created, err := initService(st).SubmitAccessRequest(ctx, requestIn)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(created)
	},
}

var requestsApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending access request",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decideRequest(cmd, args[0], true) },
}

var requestsDenyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending access request",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decideRequest(cmd, args[0], false) },
}

func decideRequest(cmd *cobra.Command, id string, approve bool) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	svc := initService(st)
	if approve {
		err = svc.ApproveAccessRequest(ctx, id, requestsDecidedBy)
	} else {
		err = svc.DenyAccessRequest(ctx, id, requestsDecidedBy)
	}
	if err != nil {
		return err
	}

	zap.L().Info("access request decided", zap.String("request_id", id), zap.Bool("approved", approve))
	return nil
}

func init() {
	requestsListCmd.Flags().StringVar(&requestsStatus, "status", "", "filter by status (pending, approved, denied)")
	requestsListCmd.Flags().StringVar(&requestsCompanyID, "company", "", "filter by company id")

	f := requestsSubmitCmd.Flags()
	f.StringVar(&requestIn.CompanyID, "company", "", "target company id (required)")
	f.StringVar(&requestIn.RequesterEmail, "email", "", "requester email (required)")
	f.StringVar(&requestIn.RequesterName, "requester-name", "", "requester name")
	f.StringVar(&requestIn.Message, "message", "", "justification message (required)")
	f.StringVar((*string)(&requestIn.MatchedBy), "matched-by", "name", "which matcher surfaced the company (abn or name)")
	_ = requestsSubmitCmd.MarkFlagRequired("company")
	_ = requestsSubmitCmd.MarkFlagRequired("email")
	_ = requestsSubmitCmd.MarkFlagRequired("message")

	for _, c := range []*cobra.Command{requestsApproveCmd, requestsDenyCmd} {
		c.Flags().StringVar(&requestsDecidedBy, "decided-by", "", "admin email recording the decision")
	}

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsSubmitCmd)
	requestsCmd.AddCommand(requestsApproveCmd)
	requestsCmd.AddCommand(requestsDenyCmd)
	rootCmd.AddCommand(requestsCmd)
}
