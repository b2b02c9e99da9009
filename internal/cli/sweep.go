package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/maintenance"
)

func sweepCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:       "sweep <close|delete>",
		Short:     "Run one auto-close or auto-delete pass now",
		Long:      "Runs a single maintenance pass with the configured thresholds, whether or not the task is enabled for the scheduler.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"close", "delete"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			mutate := func(cfg *config.Config) {
				cfg.Maintenance.AutoClose.DryRun = cfg.Maintenance.AutoClose.DryRun || dryRun
				cfg.Maintenance.AutoDelete.DryRun = cfg.Maintenance.AutoDelete.DryRun || dryRun
			}
			return withApp(cmd, flags, mutate, func(ctx context.Context, a *app.App) error {
				var (
					summary maintenance.Summary
					err     error
				)
				if kind == "close" {
					summary, err = a.AutoCloser.Sweep(ctx)
				} else {
					summary, err = a.AutoDeleter.Sweep(ctx)
				}
				printSummary(cmd, kind, summary)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without applying it")
	return cmd
}

func printSummary(cmd *cobra.Command, kind string, s maintenance.Summary) {
	out := cmd.OutOrStdout()
	verb := map[string]string{"close": "closed", "delete": "deleted"}[kind]
	if s.DryRun {
		fmt.Fprintf(out, "%s %d of %d tickets would be %s\n", color.New(color.FgCyan).Sprint("[dry-run]"), s.Candidates, s.Scanned, verb)
	} else {
		fmt.Fprintf(out, "%d of %d tickets %s\n", s.Applied, s.Scanned, verb)
	}
	if len(s.TicketIDs) > 0 {
		fmt.Fprintf(out, "  %s\n", strings.Join(s.TicketIDs, ", "))
	}
	if s.Failed > 0 {
		fmt.Fprintf(out, "  %s\n", color.New(color.FgRed).Sprintf("%d failed", s.Failed))
	}
}
