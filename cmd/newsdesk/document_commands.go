package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newDocumentCommand(ctx *commandContext) *cobra.Command {
	documentCmd := &cobra.Command{
		Use:   "document",
		Short: "Inspect and move documents",
	}
	documentCmd.AddCommand(newDocumentTransitionCommand(ctx))
	documentCmd.AddCommand(newDocumentShowCommand(ctx))
	return documentCmd
}

func newDocumentTransitionCommand(ctx *commandContext) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "transition <document-id> <current> <target>",
		Short: "Apply one lifecycle transition",
		Long: "Apply one lifecycle transition. The current status is an optimistic\n" +
			"concurrency check: the call is rejected when it no longer matches the\n" +
			"stored status.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return ctx.withServices(func(s *services) error {
				doc, err := s.api.TransitionDocument(cmd.Context(), mutationToken(token), api.TransitionDocumentRequest{
					DocumentID: id,
					Current:    args[1],
					Target:     args[2],
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Document %d is now %s\n", doc.ID, doc.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

func newDocumentShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return ctx.withServices(func(s *services) error {
				doc, err := s.api.GetDocument(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Document:  %d\n", doc.ID)
				fmt.Fprintf(out, "Status:    %s\n", doc.Status)
				fmt.Fprintf(out, "Created:   %s\n", doc.CreatedAt.Local())
				fmt.Fprintf(out, "Updated:   %s\n", doc.UpdatedAt.Local())
				text := doc.NormalizedText
				if len(text) > 400 {
					text = text[:400] + "…"
				}
				fmt.Fprintf(out, "Text:      %s\n", text)
				return nil
			})
		},
	}
}
