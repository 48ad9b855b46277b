package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newsdesk/internal/daemon"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(s *services) error {
				d, err := daemon.New(s.cfg, s.store, s.logger, s.manager)
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if err := d.Start(runCtx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "newsdesk daemon running (database %s)\n", s.cfg.DatabasePath())

				<-runCtx.Done()
				d.Stop()
				fmt.Fprintln(cmd.OutOrStdout(), "newsdesk daemon stopped")
				return nil
			})
		},
	}
}
