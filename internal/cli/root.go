// Package cli implements the ticketctl operator commands.
package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

type globalFlags struct {
	configPath string
	verbose    bool
	actor      string
}

// RootCmd returns the ticketctl command tree.
func RootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operate ticket records directly against the configured store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config.yml (defaults to $TICKETS_CONFIG)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "write service logs to stdout")
	root.PersistentFlags().StringVar(&flags.actor, "as", "ticketctl", "staff id recorded on lifecycle events")

	root.AddCommand(listCmd(flags))
	root.AddCommand(closeCmd(flags))
	root.AddCommand(reopenCmd(flags))
	root.AddCommand(sweepCmd(flags))
	root.AddCommand(transcriptCmd(flags))
	root.AddCommand(tokenCmd(flags))
	return root
}

// withApp loads configuration, builds the service and runs fn against it.
// mutate may adjust the configuration before the service is built.
func withApp(cmd *cobra.Command, flags *globalFlags, mutate func(*config.Config), fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	if flags.verbose {
		if logger, err = observability.NewLogger(cfg.App, cfg.Logger); err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (f *globalFlags) staff() events.Actor {
	return service.StaffActor(f.actor)
}
