package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

func listCmd(flags *globalFlags) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *domain.TicketStatus
			if status != "" {
				s := domain.TicketStatus(status)
				filter = &s
			}
			return withApp(cmd, flags, nil, func(ctx context.Context, a *app.App) error {
				tickets, err := a.Tickets.ListTickets(ctx, filter)
				if err != nil {
					return err
				}
				printTickets(cmd.OutOrStdout(), tickets)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only tickets in this state (Open or Closed)")
	return cmd
}

func closeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "close <ticket-id>",
		Short: "Close a ticket and archive its channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, nil, func(ctx context.Context, a *app.App) error {
				ticket, err := a.Tickets.CloseTicket(ctx, args[0], flags.staff())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Closed %s at %s\n", ticket.ID, ticket.ClosedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func reopenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <ticket-id>",
		Short: "Reopen a closed ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, nil, func(ctx context.Context, a *app.App) error {
				ticket, err := a.Tickets.ReopenTicket(ctx, args[0], flags.staff())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reopened %s\n", ticket.ID)
				return nil
			})
		},
	}
}

func printTickets(w io.Writer, tickets []domain.Ticket) {
	if len(tickets) == 0 {
		fmt.Fprintln(w, "No tickets.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tCLOSED\tCLAIMED BY")
	for _, t := range tickets {
		closed := "-"
		if t.ClosedAt != nil {
			closed = t.ClosedAt.Format(time.RFC3339)
		}
		claimed := t.ClaimedBy
		if claimed == "" {
			claimed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, statusLabel(t.Status), t.CreatedAt.Format(time.RFC3339), closed, claimed)
	}
	_ = tw.Flush()
}

func statusLabel(s domain.TicketStatus) string {
	switch s {
	case domain.TicketStatusOpen:
		return color.New(color.FgGreen).Sprint(string(s))
	case domain.TicketStatusClosed:
		return color.New(color.FgYellow).Sprint(string(s))
	}
	return string(s)
}
