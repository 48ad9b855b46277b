package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceID   int64
		externalID string
		title      string
		text       string
		fromStdin  bool
		token      string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Manually inject a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := text
			if fromStdin {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				body = string(raw)
			}
			if strings.TrimSpace(body) == "" {
				return fmt.Errorf("document text is required (--text or --stdin)")
			}

			return ctx.withServices(func(s *services) error {
				doc, err := s.api.ManualIngest(cmd.Context(), mutationToken(token), api.ManualIngestRequest{
					SourceID:   sourceID,
					ExternalID: externalID,
					Title:      title,
					Text:       body,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested document %d (status %s)\n", doc.ID, doc.Status)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&sourceID, "source", 0, "Source id the document belongs to")
	cmd.Flags().StringVar(&externalID, "external-id", "", "Stable external identifier")
	cmd.Flags().StringVar(&title, "title", "", "Document title")
	cmd.Flags().StringVar(&text, "text", "", "Document text")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read document text from stdin")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("external-id")
	return cmd
}
