package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newBundleCommand(ctx *commandContext) *cobra.Command {
	bundleCmd := &cobra.Command{
		Use:   "bundle",
		Short: "Assemble and publish newsletter bundles",
	}
	bundleCmd.AddCommand(newBundleBuildCommand(ctx))
	bundleCmd.AddCommand(newBundlePublishCommand(ctx))
	return bundleCmd
}

func newBundleBuildCommand(ctx *commandContext) *cobra.Command {
	var (
		since      string
		until      string
		insightIDs []int64
		token      string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a draft bundle from approved insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now()
			if until != "" {
				parsed, err := time.Parse(time.DateOnly, until)
				if err != nil {
					return fmt.Errorf("invalid --until date %q", until)
				}
				end = parsed.AddDate(0, 0, 1)
			}
			start := end.AddDate(0, 0, -7)
			if since != "" {
				parsed, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since date %q", since)
				}
				start = parsed
			}

			return ctx.withServices(func(s *services) error {
				bundle, err := s.api.BuildBundle(cmd.Context(), mutationToken(token), api.BuildBundleRequest{
					PeriodStart: start,
					PeriodEnd:   end,
					InsightIDs:  insightIDs,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Built bundle %d with %d insight(s)\n", bundle.ID, len(bundle.InsightIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Window start date (YYYY-MM-DD, default 7 days ago)")
	cmd.Flags().StringVar(&until, "until", "", "Window end date inclusive (YYYY-MM-DD, default today)")
	cmd.Flags().Int64SliceVar(&insightIDs, "insight", nil, "Explicit insight ids instead of the window query")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

func newBundlePublishCommand(ctx *commandContext) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "publish <bundle-id>",
		Short: "Deliver a draft bundle to the newsletter platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bundle id %q", args[0])
			}
			return ctx.withServices(func(s *services) error {
				bundle, err := s.api.PublishBundle(cmd.Context(), mutationToken(token), api.PublishBundleRequest{
					BundleID: id,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if bundle.ExternalURL != "" {
					fmt.Fprintf(out, "Published bundle %d: %s\n", bundle.ID, bundle.ExternalURL)
				} else {
					fmt.Fprintf(out, "Published bundle %d\n", bundle.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}
