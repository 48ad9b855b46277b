package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show daily pipeline counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				metrics, err := s.api.MetricsHistory(cmd.Context(), days)
				if err != nil {
					return err
				}
				if len(metrics) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pipeline activity recorded yet.")
					return nil
				}
				rows := make([][]string, 0, len(metrics))
				for _, m := range metrics {
					rows = append(rows, []string{
						m.Date,
						strconv.FormatInt(m.Ingested, 10),
						strconv.FormatInt(m.Triaged, 10),
						strconv.FormatInt(m.Analyzed, 10),
						strconv.FormatInt(m.Verified, 10),
						strconv.FormatInt(m.Rejected, 10),
						strconv.FormatInt(m.Published, 10),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Date", "Ingested", "Triaged", "Analyzed", "Verified", "Rejected", "Published"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 14, "Number of days to show")
	return cmd
}
