package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"newsdesk/internal/api"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage content sources",
	}
	sourcesCmd.AddCommand(newSourcesAddCommand(ctx))
	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesUpdateCommand(ctx))
	return sourcesCmd
}

func newSourcesAddCommand(ctx *commandContext) *cobra.Command {
	var (
		method   string
		url      string
		cfgJSON  string
		tier     int
		cooldown int
		inactive bool
		token    string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				source, err := s.api.CreateSource(cmd.Context(), mutationToken(token), api.CreateSourceRequest{
					Name:            args[0],
					Method:          method,
					URL:             url,
					ConfigJSON:      cfgJSON,
					TrustTier:       tier,
					CooldownSeconds: cooldown,
					Active:          !inactive,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created source %d (%s)\n", source.ID, source.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "rss", "Fetch method (rss, html, manual)")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Feed or page URL")
	cmd.Flags().StringVar(&cfgJSON, "selectors", "", "Selector configuration JSON for html sources")
	cmd.Flags().IntVar(&tier, "trust-tier", 0, "Editorial trust tier")
	cmd.Flags().IntVar(&cooldown, "cooldown", 0, "Per-source cooldown in seconds")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Register without activating")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				sources, err := s.api.ListSources(cmd.Context(), activeOnly)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(sources))
				for _, src := range sources {
					lastSuccess := "never"
					if src.LastSuccessAt != nil {
						lastSuccess = src.LastSuccessAt.Local().Format(time.DateTime)
					}
					active := "no"
					if src.Active {
						active = "yes"
					}
					rows = append(rows, []string{
						strconv.FormatInt(src.ID, 10),
						src.Name,
						string(src.Method),
						active,
						lastSuccess,
						strconv.Itoa(src.FailureCount),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Method", "Active", "Last Success", "Failures"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active sources")
	return cmd
}

func newSourcesUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		url      string
		cfgJSON  string
		tier     int
		cooldown int
		activate bool
		disable  bool
		token    string
	)

	cmd := &cobra.Command{
		Use:   "update <source-id>",
		Short: "Update a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			req := api.UpdateSourceRequest{SourceID: sourceID}
			if cmd.Flags().Changed("url") {
				req.URL = &url
			}
			if cmd.Flags().Changed("selectors") {
				req.ConfigJSON = &cfgJSON
			}
			if cmd.Flags().Changed("trust-tier") {
				req.TrustTier = &tier
			}
			if cmd.Flags().Changed("cooldown") {
				req.CooldownSeconds = &cooldown
			}
			if activate && disable {
				return fmt.Errorf("--activate and --disable are mutually exclusive")
			}
			if activate || disable {
				req.Active = &activate
			}

			return ctx.withServices(func(s *services) error {
				source, err := s.api.UpdateSource(cmd.Context(), mutationToken(token), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated source %d (%s)\n", source.ID, source.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "Feed or page URL")
	cmd.Flags().StringVar(&cfgJSON, "selectors", "", "Selector configuration JSON")
	cmd.Flags().IntVar(&tier, "trust-tier", 0, "Editorial trust tier")
	cmd.Flags().IntVar(&cooldown, "cooldown", 0, "Per-source cooldown in seconds")
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate the source")
	cmd.Flags().BoolVar(&disable, "disable", false, "Deactivate the source")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token (generated when empty)")
	return cmd
}

// mutationToken returns the operator-supplied idempotency token, or a fresh
// one for interactive use where replay protection is not needed.
func mutationToken(flag string) string {
	if flag != "" {
		return flag
	}
	return uuid.NewString()
}
