package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newInsightCommand(ctx *commandContext) *cobra.Command {
	insightCmd := &cobra.Command{
		Use:   "insight",
		Short: "Review insights",
	}
	insightCmd.AddCommand(newInsightApproveCommand(ctx))
	insightCmd.AddCommand(newInsightRejectCommand(ctx))
	insightCmd.AddCommand(newInsightEditCommand(ctx))
	return insightCmd
}

func parseInsightID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid insight id %q", arg)
	}
	return id, nil
}

func newInsightApproveCommand(ctx *commandContext) *cobra.Command {
	var humanVerified bool
	var token string

	cmd := &cobra.Command{
		Use:   "approve <insight-id>",
		Short: "Approve an insight for publication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInsightID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(s *services) error {
				insight, err := s.api.ApproveInsight(cmd.Context(), mutationToken(token), api.ApproveInsightRequest{
					InsightID:     id,
					HumanVerified: humanVerified,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved insight %d (%s)\n", insight.ID, insight.Headline)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&humanVerified, "verified", false, "Confirm the flagged claims were checked by a human")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

func newInsightRejectCommand(ctx *commandContext) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "reject <insight-id>",
		Short: "Reject an insight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInsightID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(s *services) error {
				insight, err := s.api.RejectInsight(cmd.Context(), mutationToken(token), api.RejectInsightRequest{
					InsightID: id,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected insight %d (%s)\n", insight.ID, insight.Headline)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

func newInsightEditCommand(ctx *commandContext) *cobra.Command {
	var (
		headline   string
		summary    string
		confidence string
		token      string
	)

	cmd := &cobra.Command{
		Use:   "edit <insight-id>",
		Short: "Edit human-facing insight fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInsightID(args[0])
			if err != nil {
				return err
			}
			req := api.PatchInsightRequest{InsightID: id}
			if cmd.Flags().Changed("headline") {
				req.Headline = &headline
			}
			if cmd.Flags().Changed("summary") {
				req.SummaryMarkdown = &summary
			}
			if cmd.Flags().Changed("confidence") {
				req.ConfidenceLabel = &confidence
			}
			if req.Headline == nil && req.SummaryMarkdown == nil && req.ConfidenceLabel == nil {
				return fmt.Errorf("nothing to edit (set --headline, --summary, or --confidence)")
			}
			return ctx.withServices(func(s *services) error {
				insight, err := s.api.PatchInsight(cmd.Context(), mutationToken(token), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated insight %d\n", insight.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&headline, "headline", "", "New headline")
	cmd.Flags().StringVar(&summary, "summary", "", "New summary markdown")
	cmd.Flags().StringVar(&confidence, "confidence", "", "New confidence label")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}
