package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newInboxCommand(ctx *commandContext) *cobra.Command {
	var (
		status       string
		editorStatus string
		minNovelty   int
		sourceID     int64
		limit        int
		byScore      bool
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List documents awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				entries, err := s.api.Inbox(cmd.Context(), api.InboxRequest{
					Status:       status,
					EditorStatus: editorStatus,
					MinNovelty:   minNovelty,
					SourceID:     sourceID,
					Limit:        limit,
					SortByScore:  byScore,
				})
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Inbox is empty.")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					flagged := ""
					if entry.NeedsHumanVerification {
						flagged = "verify"
					}
					rows = append(rows, []string{
						strconv.FormatInt(entry.DocumentID, 10),
						strconv.FormatInt(entry.InsightID, 10),
						entry.SourceName,
						entry.Headline,
						strconv.Itoa(entry.NoveltyScore),
						entry.ConfidenceLabel,
						string(entry.EditorStatus),
						flagged,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Doc", "Insight", "Source", "Headline", "Novelty", "Confidence", "Verdict", "Flags"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Document status filter (default ready_for_review)")
	cmd.Flags().StringVar(&editorStatus, "verdict", "", "Editor verdict filter (pending, approved, rejected)")
	cmd.Flags().IntVar(&minNovelty, "min-novelty", 0, "Minimum novelty score")
	cmd.Flags().Int64Var(&sourceID, "source", 0, "Filter by source id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows")
	cmd.Flags().BoolVar(&byScore, "by-score", false, "Sort by novelty score instead of age")
	return cmd
}
