package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newPollCommand(ctx *commandContext) *cobra.Command {
	var sourceID int64
	var token string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll sources for new documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				stats, err := s.api.TriggerPoll(cmd.Context(), mutationToken(token), api.TriggerPollRequest{
					SourceID: sourceID,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Polled %d source(s): %d skipped, %d failed, %d item(s) seen, %d ingested\n",
					stats.SourcesPolled, stats.SourcesSkipped, stats.SourcesFailed,
					stats.ItemsSeen, stats.ItemsIngested,
				)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&sourceID, "source", 0, "Poll a single source by id")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}
